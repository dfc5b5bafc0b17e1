package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

type entryKey struct {
	userID  uuid.UUID
	titleID uuid.UUID
}

// MemoryRepository is an in-memory Repository used by tests. It applies
// the same monotonic/latch rules as the Postgres upsert.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[entryKey]Entry)}
}

func (r *MemoryRepository) Get(_ context.Context, userID, titleID uuid.UUID) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entryKey{userID, titleID}]
	if !ok {
		return Entry{}, apperr.ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, e Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey{e.UserID, e.TitleID}
	now := time.Now().UTC()
	cur, ok := r.entries[key]
	if !ok {
		e.CreatedAt = now
		e.UpdatedAt = now
		r.entries[key] = e
		return e, nil
	}

	cur.Status = e.Status
	cur.EpisodesWatched = max(cur.EpisodesWatched, e.EpisodesWatched)
	cur.CurrentEpisode = max(cur.CurrentEpisode, e.CurrentEpisode)
	cur.TimeWatchedMinutes = max(cur.TimeWatchedMinutes, e.TimeWatchedMinutes)
	if e.Rating != nil {
		cur.Rating = e.Rating
	}
	if cur.StartDate == nil {
		cur.StartDate = e.StartDate
	}
	if cur.FinishDate == nil {
		cur.FinishDate = e.FinishDate
	}
	cur.Notes = e.Notes
	cur.Priority = e.Priority
	cur.RewatchCount = e.RewatchCount
	cur.Tags = e.Tags
	cur.IsPrivate = e.IsPrivate
	if e.LastWatched.After(cur.LastWatched) {
		cur.LastWatched = e.LastWatched
	}
	cur.UpdatedAt = now
	r.entries[key] = cur
	return cur, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID uuid.UUID, f ListFilter) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for k, e := range r.entries {
		if k.userID != userID {
			continue
		}
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastWatched.After(out[j].LastWatched) })

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

func (r *MemoryRepository) AggregateByUser(ctx context.Context, userID uuid.UUID) (Aggregate, error) {
	entries, err := r.ListByUser(ctx, userID, ListFilter{Limit: -1})
	if err != nil {
		return Aggregate{}, err
	}
	var a Aggregate
	ratingSum := 0
	for _, e := range entries {
		switch e.Status {
		case StatusWatching:
			a.Watching++
		case StatusCompleted:
			a.Completed++
		case StatusOnHold:
			a.OnHold++
		case StatusDropped:
			a.Dropped++
		case StatusPlanToWatch:
			a.PlanToWatch++
		}
		a.TotalEntries++
		a.TotalEpisodes += e.EpisodesWatched
		a.TotalMinutes += e.TimeWatchedMinutes
		if e.Rating != nil {
			a.RatedCount++
			ratingSum += *e.Rating
		}
	}
	if a.RatedCount > 0 {
		a.AverageRating = float64(ratingSum) / float64(a.RatedCount)
	}
	return a, nil
}

func (r *MemoryRepository) Delete(_ context.Context, userID, titleID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey{userID, titleID}
	if _, ok := r.entries[key]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.entries, key)
	return nil
}
