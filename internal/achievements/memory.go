package achievements

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

// MemoryDefinitionStore keeps definitions in memory for tests.
type MemoryDefinitionStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Definition
	byName map[string]uuid.UUID
	order  []uuid.UUID
}

func NewMemoryDefinitionStore() *MemoryDefinitionStore {
	return &MemoryDefinitionStore{
		byID:   make(map[uuid.UUID]Definition),
		byName: make(map[string]uuid.UUID),
	}
}

func (s *MemoryDefinitionStore) Create(_ context.Context, d Definition) (Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[d.Name]; ok {
		return Definition{}, fmt.Errorf("%w: achievement %q already exists", apperr.ErrConflict, d.Name)
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.byID[d.ID] = d
	s.byName[d.Name] = d.ID
	s.order = append(s.order, d.ID)
	return d, nil
}

func (s *MemoryDefinitionStore) GetByName(_ context.Context, name string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return Definition{}, apperr.NotFoundf("achievement not found")
	}
	return s.byID[id], nil
}

func (s *MemoryDefinitionStore) Get(_ context.Context, id uuid.UUID) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return Definition{}, apperr.NotFoundf("achievement not found")
	}
	return d, nil
}

func (s *MemoryDefinitionStore) ListActive(_ context.Context) ([]Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.order))
	for _, id := range s.order {
		if d := s.byID[id]; d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryDefinitionStore) List(_ context.Context, f DefinitionFilter) ([]Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.order))
	for _, id := range s.order {
		d := s.byID[id]
		if !d.IsActive {
			continue
		}
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		if f.Rarity != "" && d.Rarity != f.Rarity {
			continue
		}
		if d.IsSecret && !f.IncludeSecret {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type ledgerKey struct {
	user        uuid.UUID
	achievement uuid.UUID
}

// MemoryLedgerStore keeps ledger entries in memory for tests, applying the
// same monotonic rules as the SQL upsert.
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries map[ledgerKey]LedgerEntry
	order   []ledgerKey
	defs    *MemoryDefinitionStore
}

// NewMemoryLedgerStore joins against defs for reads and leaderboards.
func NewMemoryLedgerStore(defs *MemoryDefinitionStore) *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries: make(map[ledgerKey]LedgerEntry),
		defs:    defs,
	}
}

func (s *MemoryLedgerStore) Get(_ context.Context, userID, achievementID uuid.UUID) (LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[ledgerKey{userID, achievementID}]
	if !ok {
		return LedgerEntry{}, apperr.NotFoundf("achievement progress not found")
	}
	return e, nil
}

func (s *MemoryLedgerStore) UpsertProgress(_ context.Context, userID, achievementID uuid.UUID, current, target float64, points int) (LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := ledgerKey{userID, achievementID}
	e, ok := s.entries[key]
	wasCompleted := ok && e.IsCompleted
	if !ok {
		e = LedgerEntry{
			UserID:        userID,
			AchievementID: achievementID,
			IsDisplayed:   true,
			CreatedAt:     now,
		}
		s.order = append(s.order, key)
	}
	if current > e.Progress.Current {
		e.Progress.Current = current
	}
	e.Progress.Target = target
	e.Progress.Percentage = PercentOf(e.Progress.Current, target)
	if !e.IsCompleted && e.Progress.Current >= target {
		e.IsCompleted = true
		unlocked := now
		e.UnlockedAt = &unlocked
	}
	e.Metadata = map[string]any{"points": points}
	e.UpdatedAt = now
	s.entries[key] = e
	return e, wasCompleted, nil
}

func (s *MemoryLedgerStore) ListByUser(ctx context.Context, userID uuid.UUID, f LedgerFilter) ([]UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UserAchievement, 0, 8)
	for _, key := range s.order {
		if key.user != userID {
			continue
		}
		e := s.entries[key]
		if f.Completed != nil && e.IsCompleted != *f.Completed {
			continue
		}
		if f.Displayed != nil && e.IsDisplayed != *f.Displayed {
			continue
		}
		d, err := s.defs.Get(ctx, key.achievement)
		if err != nil {
			continue
		}
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		out = append(out, UserAchievement{Entry: e, Definition: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Entry.UpdatedAt.After(out[j].Entry.UpdatedAt)
	})
	return out, nil
}

func (s *MemoryLedgerStore) RecentUnlocks(ctx context.Context, userID uuid.UUID, limit int) ([]UserAchievement, error) {
	if limit <= 0 {
		limit = 10
	}
	completed := true
	all, err := s.ListByUser(ctx, userID, LedgerFilter{Completed: &completed})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Entry.UnlockedAt.After(*all[j].Entry.UnlockedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryLedgerStore) Leaderboard(ctx context.Context, category string, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make(map[uuid.UUID]*LeaderboardRow)
	userOrder := make([]uuid.UUID, 0, 8)
	for _, key := range s.order {
		e := s.entries[key]
		if !e.IsCompleted {
			continue
		}
		d, err := s.defs.Get(ctx, key.achievement)
		if err != nil {
			continue
		}
		if category != "" && d.Category != category {
			continue
		}
		r, ok := rows[key.user]
		if !ok {
			r = &LeaderboardRow{UserID: key.user}
			rows[key.user] = r
			userOrder = append(userOrder, key.user)
		}
		r.TotalPoints += d.Rewards.Points
		r.CompletedAchievements++
		if r.LastUnlock == nil || e.UnlockedAt.After(*r.LastUnlock) {
			r.LastUnlock = e.UnlockedAt
		}
	}

	out := make([]LeaderboardRow, 0, len(userOrder))
	for _, id := range userOrder {
		out = append(out, *rows[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].CompletedAchievements > out[j].CompletedAchievements
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryLedgerStore) SetDisplayed(_ context.Context, userID, achievementID uuid.UUID, displayed bool) (LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey{userID, achievementID}
	e, ok := s.entries[key]
	if !ok {
		return LedgerEntry{}, apperr.NotFoundf("achievement progress not found")
	}
	e.IsDisplayed = displayed
	e.UpdatedAt = time.Now().UTC()
	s.entries[key] = e
	return e, nil
}

func (s *MemoryLedgerStore) ProgressByCategory(ctx context.Context, userID uuid.UUID) ([]CategoryProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCat := make(map[string]*CategoryProgress)
	sums := make(map[string]float64)
	for _, key := range s.order {
		if key.user != userID {
			continue
		}
		e := s.entries[key]
		d, err := s.defs.Get(ctx, key.achievement)
		if err != nil {
			continue
		}
		c, ok := byCat[d.Category]
		if !ok {
			c = &CategoryProgress{Category: d.Category}
			byCat[d.Category] = c
		}
		c.Total++
		if e.IsCompleted {
			c.Completed++
		}
		sums[d.Category] += float64(e.Progress.Percentage)
	}

	out := make([]CategoryProgress, 0, len(byCat))
	for cat, c := range byCat {
		c.AverageProgress = sums[cat] / float64(c.Total)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}
