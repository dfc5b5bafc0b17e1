package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Title
	bySlug map[string]uuid.UUID

	// StatsSource, when set, supplies the aggregate for RecomputeStats.
	StatsSource func(ctx context.Context, titleID uuid.UUID) (TitleStats, error)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]Title),
		bySlug: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Title, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return Title{}, apperr.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) GetBySlug(_ context.Context, slug string) (Title, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return Title{}, apperr.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) Upsert(_ context.Context, t Title) (Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySlug[t.Slug]; ok {
		t.ID = id
	} else if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.byID[t.ID] = t
	if t.Slug != "" {
		s.bySlug[t.Slug] = t.ID
	}
	return t, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]Title, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Title
	for _, t := range s.byID {
		if t.Watchable() {
			out = append(out, t)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) RecomputeStats(ctx context.Context, id uuid.UUID) error {
	s.mu.RLock()
	t, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return apperr.ErrNotFound
	}
	if s.StatsSource == nil {
		return nil
	}
	st, err := s.StatsSource(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	t.Stats = st
	s.byID[id] = t
	s.mu.Unlock()
	return nil
}
