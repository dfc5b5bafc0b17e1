package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

type eventKey struct {
	userID    uuid.UUID
	titleID   uuid.UUID
	episodeID string
}

// MemoryRepository is an in-memory Repository used by tests. It applies
// the same monotonic/latch rules as the Postgres upsert.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[eventKey]Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[eventKey]Event)}
}

func (r *MemoryRepository) Get(_ context.Context, userID, titleID uuid.UUID, episodeID string) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[eventKey{userID, titleID, episodeID}]
	if !ok {
		return Event{}, apperr.ErrNotFound
	}
	return ev, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, ev Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventKey{ev.UserID, ev.TitleID, ev.EpisodeID}
	now := time.Now().UTC()
	cur, ok := r.events[key]
	if !ok {
		ev.StartedAt = now
		ev.LastWatchedAt = now
		ev.CreatedAt = now
		ev.UpdatedAt = now
		r.events[key] = ev
		return ev, nil
	}

	cur.EpisodeNumber = ev.EpisodeNumber
	cur.EpisodeTitle = ev.EpisodeTitle
	if ev.WatchedTimeSeconds > cur.WatchedTimeSeconds {
		cur.WatchedTimeSeconds = ev.WatchedTimeSeconds
	}
	cur.TotalTimeSeconds = ev.TotalTimeSeconds
	// Derived from the clamped watched time so a corrected duration can
	// lower the percent even though watched time never decreases.
	cur.ProgressPercent = Percent(cur.WatchedTimeSeconds, cur.TotalTimeSeconds)
	cur.Status = ev.Status
	cur.Quality = ev.Quality
	cur.AudioLanguage = ev.AudioLanguage
	cur.SubtitleLanguage = ev.SubtitleLanguage
	cur.Device = ev.Device
	cur.LastWatchedAt = now
	if cur.CompletedAt == nil {
		cur.CompletedAt = ev.CompletedAt
	}
	cur.UpdatedAt = now
	r.events[key] = cur
	return cur, nil
}

func (r *MemoryRepository) Increment(_ context.Context, userID, titleID uuid.UUID, episodeID string, c Counter) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventKey{userID, titleID, episodeID}
	ev, ok := r.events[key]
	if !ok {
		return Event{}, apperr.ErrNotFound
	}
	if c == CounterSeek {
		ev.SeekCount++
	} else {
		ev.PauseCount++
	}
	ev.UpdatedAt = time.Now().UTC()
	r.events[key] = ev
	return ev, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID uuid.UUID, f ListFilter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Event
	for k, ev := range r.events {
		if k.userID != userID {
			continue
		}
		if f.TitleID != nil && ev.TitleID != *f.TitleID {
			continue
		}
		if f.Status != nil && ev.Status != *f.Status {
			continue
		}
		if f.DateFrom != nil && ev.LastWatchedAt.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && ev.LastWatchedAt.After(*f.DateTo) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastWatchedAt.After(out[j].LastWatchedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) ContinueWatching(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error) {
	all, err := r.ListByUser(ctx, userID, ListFilter{Limit: -1})
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	var out []Event
	for _, ev := range all {
		switch ev.Status {
		case StatusStarted, StatusWatching, StatusPaused:
		default:
			continue
		}
		if ev.ProgressPercent > 5 && ev.ProgressPercent < 90 {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepository) AggregateByUser(ctx context.Context, userID uuid.UUID) (Aggregate, error) {
	all, err := r.ListByUser(ctx, userID, ListFilter{Limit: -1})
	if err != nil {
		return Aggregate{}, err
	}
	var a Aggregate
	progressSum := 0
	for _, ev := range all {
		a.TotalEpisodes++
		if ev.Status == StatusCompleted {
			a.CompletedEpisodes++
		}
		a.TotalWatchSeconds += ev.WatchedTimeSeconds
		a.TotalPauses += ev.PauseCount
		a.TotalSeeks += ev.SeekCount
		progressSum += ev.ProgressPercent
	}
	if a.TotalEpisodes > 0 {
		a.AverageProgress = float64(progressSum) / float64(a.TotalEpisodes)
	}
	return a, nil
}

func (r *MemoryRepository) DistinctTitleIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for k := range r.events {
		if k.userID == userID && !seen[k.titleID] {
			seen[k.titleID] = true
			out = append(out, k.titleID)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Clear(_ context.Context, userID uuid.UUID, titleID *uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k := range r.events {
		if k.userID != userID {
			continue
		}
		if titleID != nil && k.titleID != *titleID {
			continue
		}
		delete(r.events, k)
		n++
	}
	return n, nil
}

func (r *MemoryRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, ev := range r.events {
		if ev.CreatedAt.Before(cutoff) {
			delete(r.events, k)
			n++
		}
	}
	return n, nil
}
