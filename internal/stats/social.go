package stats

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSocialCounter reads the social tables (favorites, friendships,
// comments) owned by the social side of the platform.
type PostgresSocialCounter struct {
	db *pgxpool.Pool
}

func NewPostgresSocialCounter(db *pgxpool.Pool) *PostgresSocialCounter {
	return &PostgresSocialCounter{db: db}
}

func (s *PostgresSocialCounter) FavoritesCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM favorites WHERE user_id=$1`, userID)
}

func (s *PostgresSocialCounter) FriendsCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM friendships
		 WHERE (requester_id=$1 OR addressee_id=$1) AND status='accepted'`, userID)
}

func (s *PostgresSocialCounter) CommentsCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM comments WHERE user_id=$1`, userID)
}

func (s *PostgresSocialCounter) FavoriteTitleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT title_id FROM favorites WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("favorite titles: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("favorite titles scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresSocialCounter) count(ctx context.Context, q string, userID uuid.UUID) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("social count: %w", err)
	}
	return n, nil
}

// MemorySocialCounter is the in-memory SocialCounter used by tests.
type MemorySocialCounter struct {
	mu        sync.RWMutex
	Favorites map[uuid.UUID][]uuid.UUID
	Friends   map[uuid.UUID]int
	Comments  map[uuid.UUID]int
}

func NewMemorySocialCounter() *MemorySocialCounter {
	return &MemorySocialCounter{
		Favorites: make(map[uuid.UUID][]uuid.UUID),
		Friends:   make(map[uuid.UUID]int),
		Comments:  make(map[uuid.UUID]int),
	}
}

func (m *MemorySocialCounter) AddFavorite(userID, titleID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Favorites[userID] = append(m.Favorites[userID], titleID)
}

func (m *MemorySocialCounter) FavoritesCount(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Favorites[userID]), nil
}

func (m *MemorySocialCounter) FriendsCount(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Friends[userID], nil
}

func (m *MemorySocialCounter) CommentsCount(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Comments[userID], nil
}

func (m *MemorySocialCounter) FavoriteTitleIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uuid.UUID, len(m.Favorites[userID]))
	copy(out, m.Favorites[userID])
	return out, nil
}
