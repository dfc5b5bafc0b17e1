package history

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const eventColumns = `user_id, title_id, episode_id, episode_number, episode_title,
watched_time_seconds, total_time_seconds, progress_percent, status, pause_count, seek_count,
quality, audio_language, subtitle_language, device, started_at, last_watched_at, completed_at,
created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, userID, titleID uuid.UUID, episodeID string) (Event, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM watch_history
		 WHERE user_id=$1 AND title_id=$2 AND episode_id=$3`,
		userID, titleID, episodeID)
	return scanEvent(row)
}

// Upsert applies the idempotent per-episode contract on the unique triple:
// watched time only moves forward, completed_at latches once.
func (r *PostgresRepository) Upsert(ctx context.Context, ev Event) (Event, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO watch_history (user_id, title_id, episode_id, episode_number, episode_title,
                           watched_time_seconds, total_time_seconds, progress_percent, status,
                           pause_count, seek_count, quality, audio_language, subtitle_language,
                           device, started_at, last_watched_at, completed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,0,$10,$11,$12,$13, now(), now(), $14, now(), now())
ON CONFLICT (user_id, title_id, episode_id) DO UPDATE SET
  episode_number       = EXCLUDED.episode_number,
  episode_title        = EXCLUDED.episode_title,
  watched_time_seconds = GREATEST(watch_history.watched_time_seconds, EXCLUDED.watched_time_seconds),
  total_time_seconds   = EXCLUDED.total_time_seconds,
  -- Recomputed from the clamped watched time so a corrected duration
  -- can lower the stored percent.
  progress_percent     = LEAST(100, ROUND(GREATEST(watch_history.watched_time_seconds, EXCLUDED.watched_time_seconds) * 100.0 / EXCLUDED.total_time_seconds))::int,
  status               = EXCLUDED.status,
  quality              = EXCLUDED.quality,
  audio_language       = EXCLUDED.audio_language,
  subtitle_language    = EXCLUDED.subtitle_language,
  device               = EXCLUDED.device,
  last_watched_at      = now(),
  completed_at         = COALESCE(watch_history.completed_at, EXCLUDED.completed_at),
  updated_at           = now()
RETURNING `+eventColumns,
		ev.UserID, ev.TitleID, ev.EpisodeID, ev.EpisodeNumber, ev.EpisodeTitle,
		ev.WatchedTimeSeconds, ev.TotalTimeSeconds, ev.ProgressPercent, ev.Status,
		ev.Quality, ev.AudioLanguage, ev.SubtitleLanguage, ev.Device, ev.CompletedAt)
	return scanEvent(row)
}

func (r *PostgresRepository) Increment(ctx context.Context, userID, titleID uuid.UUID, episodeID string, c Counter) (Event, error) {
	col := "pause_count"
	if c == CounterSeek {
		col = "seek_count"
	}
	row := r.db.QueryRow(ctx, `
UPDATE watch_history SET `+col+` = `+col+` + 1, updated_at = now()
WHERE user_id=$1 AND title_id=$2 AND episode_id=$3
RETURNING `+eventColumns,
		userID, titleID, episodeID)
	return scanEvent(row)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Event, error) {
	q := `SELECT ` + eventColumns + ` FROM watch_history WHERE user_id=$1`
	args := []any{userID}
	if f.TitleID != nil {
		args = append(args, *f.TitleID)
		q += fmt.Sprintf(` AND title_id=$%d`, len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		q += fmt.Sprintf(` AND last_watched_at >= $%d`, len(args))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		q += fmt.Sprintf(` AND last_watched_at <= $%d`, len(args))
	}
	q += ` ORDER BY last_watched_at DESC`
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history list: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *PostgresRepository) ContinueWatching(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx, `
SELECT `+eventColumns+` FROM watch_history
WHERE user_id=$1 AND status IN ('started','watching','paused')
  AND progress_percent > 5 AND progress_percent < 90
ORDER BY last_watched_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history continue: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *PostgresRepository) AggregateByUser(ctx context.Context, userID uuid.UUID) (Aggregate, error) {
	var a Aggregate
	err := r.db.QueryRow(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status='completed'),
       COALESCE(SUM(watched_time_seconds), 0),
       COALESCE(SUM(pause_count), 0),
       COALESCE(SUM(seek_count), 0),
       COALESCE(AVG(progress_percent), 0)
FROM watch_history WHERE user_id=$1`, userID).Scan(
		&a.TotalEpisodes, &a.CompletedEpisodes, &a.TotalWatchSeconds,
		&a.TotalPauses, &a.TotalSeeks, &a.AverageProgress)
	if err != nil {
		return Aggregate{}, fmt.Errorf("history aggregate: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) DistinctTitleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT title_id FROM watch_history WHERE user_id=$1`, userID)
	if err != nil {
		return nil, fmt.Errorf("history titles: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("history titles scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Clear(ctx context.Context, userID uuid.UUID, titleID *uuid.UUID) (int64, error) {
	if titleID != nil {
		ct, err := r.db.Exec(ctx,
			`DELETE FROM watch_history WHERE user_id=$1 AND title_id=$2`, userID, *titleID)
		if err != nil {
			return 0, fmt.Errorf("history clear: %w", err)
		}
		return ct.RowsAffected(), nil
	}
	ct, err := r.db.Exec(ctx, `DELETE FROM watch_history WHERE user_id=$1`, userID)
	if err != nil {
		return 0, fmt.Errorf("history clear: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM watch_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history retention: %w", err)
	}
	return ct.RowsAffected(), nil
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	err := row.Scan(&ev.UserID, &ev.TitleID, &ev.EpisodeID, &ev.EpisodeNumber, &ev.EpisodeTitle,
		&ev.WatchedTimeSeconds, &ev.TotalTimeSeconds, &ev.ProgressPercent, &ev.Status,
		&ev.PauseCount, &ev.SeekCount, &ev.Quality, &ev.AudioLanguage, &ev.SubtitleLanguage,
		&ev.Device, &ev.StartedAt, &ev.LastWatchedAt, &ev.CompletedAt, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, apperr.ErrNotFound
		}
		return Event{}, fmt.Errorf("history scan: %w", err)
	}
	return ev, nil
}
