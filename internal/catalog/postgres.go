package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

// PostgresStore is the production Postgres-backed catalog.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const titleColumns = `id, slug, name, alt_name, synopsis, type, total_episodes, episode_duration,
genres, year, season, poster, score, stats, is_active, approved, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Title, error) {
	row := s.db.QueryRow(ctx, `SELECT `+titleColumns+` FROM titles WHERE id=$1`, id)
	return scanTitle(row)
}

func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (Title, error) {
	row := s.db.QueryRow(ctx, `SELECT `+titleColumns+` FROM titles WHERE slug=$1`, slug)
	return scanTitle(row)
}

func (s *PostgresStore) Upsert(ctx context.Context, t Title) (Title, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	genres, _ := json.Marshal(t.Genres)
	stats, _ := json.Marshal(t.Stats)
	row := s.db.QueryRow(ctx, `
INSERT INTO titles (id, slug, name, alt_name, synopsis, type, total_episodes, episode_duration,
                    genres, year, season, poster, score, stats, is_active, approved, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16, now())
ON CONFLICT (slug) DO UPDATE SET
  name             = EXCLUDED.name,
  alt_name         = EXCLUDED.alt_name,
  synopsis         = EXCLUDED.synopsis,
  type             = EXCLUDED.type,
  total_episodes   = EXCLUDED.total_episodes,
  episode_duration = EXCLUDED.episode_duration,
  genres           = EXCLUDED.genres,
  year             = EXCLUDED.year,
  season           = EXCLUDED.season,
  poster           = EXCLUDED.poster,
  score            = EXCLUDED.score,
  is_active        = EXCLUDED.is_active,
  approved         = EXCLUDED.approved,
  updated_at       = now()
RETURNING `+titleColumns,
		t.ID, t.Slug, t.Name, t.AltName, t.Synopsis, t.Type, t.TotalEpisodes, t.EpisodeDuration,
		genres, t.Year, t.Season, t.Poster, t.Score, stats, t.IsActive, t.Approved,
	)
	return scanTitle(row)
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Title, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+titleColumns+` FROM titles WHERE is_active AND approved
		 ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w", err)
	}
	defer rows.Close()

	var out []Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecomputeStats rebuilds the per-title aggregate from watch_progress.
// A full re-aggregation, so concurrent lost updates converge on the next run.
func (s *PostgresStore) RecomputeStats(ctx context.Context, id uuid.UUID) error {
	rows, err := s.db.Query(ctx,
		`SELECT status, COUNT(*) FROM watch_progress WHERE title_id=$1 GROUP BY status`, id)
	if err != nil {
		return fmt.Errorf("recompute stats: %w", err)
	}
	defer rows.Close()

	var st TitleStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return fmt.Errorf("recompute stats scan: %w", err)
		}
		switch status {
		case "watching":
			st.Watching = n
		case "completed":
			st.Completed = n
		case "onHold":
			st.OnHold = n
		case "dropped":
			st.Dropped = n
		case "planToWatch":
			st.PlanToWatch = n
		}
		st.TotalViews += n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("recompute stats rows: %w", err)
	}

	data, _ := json.Marshal(st)
	ct, err := s.db.Exec(ctx, `UPDATE titles SET stats=$2, updated_at=now() WHERE id=$1`, id, data)
	if err != nil {
		return fmt.Errorf("recompute stats update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFoundf("title %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTitle(row rowScanner) (Title, error) {
	var t Title
	var genres, stats []byte
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.AltName, &t.Synopsis, &t.Type,
		&t.TotalEpisodes, &t.EpisodeDuration, &genres, &t.Year, &t.Season,
		&t.Poster, &t.Score, &stats, &t.IsActive, &t.Approved, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Title{}, apperr.ErrNotFound
		}
		return Title{}, fmt.Errorf("catalog scan: %w", err)
	}
	_ = json.Unmarshal(genres, &t.Genres)
	_ = json.Unmarshal(stats, &t.Stats)
	return t, nil
}
