package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]User
	byName map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[uuid.UUID]User),
		byName: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return User{}, apperr.ErrNotFound
	}
	return s.users[id], nil
}

func (s *MemoryStore) Create(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[u.Username]; exists {
		return User{}, apperr.ErrConflict
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = "user"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.IsActive = true
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	return u, nil
}

func (s *MemoryStore) Usernames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u.Username
		}
	}
	return out, nil
}
