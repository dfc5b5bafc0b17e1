package progress

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

// PostgresRepository is the production Postgres-backed implementation.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `user_id, title_id, status, episodes_watched, current_episode, time_watched_minutes,
rating, start_date, finish_date, notes, priority, rewatch_count, tags, is_private,
last_watched, created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, userID, titleID uuid.UUID) (Entry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM watch_progress WHERE user_id=$1 AND title_id=$2`,
		userID, titleID)
	return scanEntry(row)
}

// Upsert applies the compare-and-swap contract on the (user_id, title_id)
// unique index: progress columns only move forward (GREATEST), dates latch
// (COALESCE with the stored value first), and a concurrent first insert
// degrades into an update instead of a duplicate-key error.
func (r *PostgresRepository) Upsert(ctx context.Context, e Entry) (Entry, error) {
	tags, _ := json.Marshal(e.Tags)
	row := r.db.QueryRow(ctx, `
INSERT INTO watch_progress (user_id, title_id, status, episodes_watched, current_episode,
                            time_watched_minutes, rating, start_date, finish_date, notes,
                            priority, rewatch_count, tags, is_private, last_watched,
                            created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15, now(), now())
ON CONFLICT (user_id, title_id) DO UPDATE SET
  status               = EXCLUDED.status,
  episodes_watched     = GREATEST(watch_progress.episodes_watched, EXCLUDED.episodes_watched),
  current_episode      = GREATEST(watch_progress.current_episode, EXCLUDED.current_episode),
  time_watched_minutes = GREATEST(watch_progress.time_watched_minutes, EXCLUDED.time_watched_minutes),
  rating               = COALESCE(EXCLUDED.rating, watch_progress.rating),
  start_date           = COALESCE(watch_progress.start_date, EXCLUDED.start_date),
  finish_date          = COALESCE(watch_progress.finish_date, EXCLUDED.finish_date),
  notes                = EXCLUDED.notes,
  priority             = EXCLUDED.priority,
  rewatch_count        = EXCLUDED.rewatch_count,
  tags                 = EXCLUDED.tags,
  is_private           = EXCLUDED.is_private,
  last_watched         = GREATEST(watch_progress.last_watched, EXCLUDED.last_watched),
  updated_at           = now()
RETURNING `+entryColumns,
		e.UserID, e.TitleID, e.Status, e.EpisodesWatched, e.CurrentEpisode,
		e.TimeWatchedMinutes, e.Rating, e.StartDate, e.FinishDate, e.Notes,
		e.Priority, e.RewatchCount, tags, e.IsPrivate, e.LastWatched)
	return scanEntry(row)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM watch_progress WHERE user_id=$1`
	args := []any{userID}
	if f.Status != nil {
		q += ` AND status=$2`
		args = append(args, *f.Status)
	}
	q += ` ORDER BY last_watched DESC`
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("progress list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AggregateByUser(ctx context.Context, userID uuid.UUID) (Aggregate, error) {
	var a Aggregate
	err := r.db.QueryRow(ctx, `
SELECT
  COUNT(*) FILTER (WHERE status='watching'),
  COUNT(*) FILTER (WHERE status='completed'),
  COUNT(*) FILTER (WHERE status='onHold'),
  COUNT(*) FILTER (WHERE status='dropped'),
  COUNT(*) FILTER (WHERE status='planToWatch'),
  COUNT(*),
  COALESCE(SUM(episodes_watched), 0),
  COALESCE(SUM(time_watched_minutes), 0),
  COUNT(rating),
  COALESCE(AVG(rating), 0)
FROM watch_progress WHERE user_id=$1`, userID).Scan(
		&a.Watching, &a.Completed, &a.OnHold, &a.Dropped, &a.PlanToWatch,
		&a.TotalEntries, &a.TotalEpisodes, &a.TotalMinutes, &a.RatedCount, &a.AverageRating)
	if err != nil {
		return Aggregate{}, fmt.Errorf("progress aggregate: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, titleID uuid.UUID) error {
	ct, err := r.db.Exec(ctx,
		`DELETE FROM watch_progress WHERE user_id=$1 AND title_id=$2`, userID, titleID)
	if err != nil {
		return fmt.Errorf("progress delete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var tags []byte
	err := row.Scan(&e.UserID, &e.TitleID, &e.Status, &e.EpisodesWatched, &e.CurrentEpisode,
		&e.TimeWatchedMinutes, &e.Rating, &e.StartDate, &e.FinishDate, &e.Notes,
		&e.Priority, &e.RewatchCount, &tags, &e.IsPrivate,
		&e.LastWatched, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.ErrNotFound
		}
		return Entry{}, fmt.Errorf("progress scan: %w", err)
	}
	_ = json.Unmarshal(tags, &e.Tags)
	return e, nil
}
