package achievements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

// PostgresDefinitionStore persists achievement definitions.
type PostgresDefinitionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDefinitionStore(pool *pgxpool.Pool) *PostgresDefinitionStore {
	return &PostgresDefinitionStore{pool: pool}
}

const definitionColumns = `id, name, title, description, icon, category, rarity,
	criteria_type, criteria_target, criteria_field,
	points, badge, reward_title, is_active, is_secret, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (Definition, error) {
	var d Definition
	err := row.Scan(
		&d.ID, &d.Name, &d.Title, &d.Description, &d.Icon, &d.Category, &d.Rarity,
		&d.Criteria.Type, &d.Criteria.Target, &d.Criteria.Field,
		&d.Rewards.Points, &d.Rewards.Badge, &d.Rewards.Title,
		&d.IsActive, &d.IsSecret, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Definition{}, apperr.NotFoundf("achievement not found")
	}
	if err != nil {
		return Definition{}, fmt.Errorf("scan achievement: %w", err)
	}
	return d, nil
}

func (s *PostgresDefinitionStore) Create(ctx context.Context, d Definition) (Definition, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO achievements (
			id, name, title, description, icon, category, rarity,
			criteria_type, criteria_target, criteria_field,
			points, badge, reward_title, is_active, is_secret, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
		RETURNING `+definitionColumns,
		d.ID, d.Name, d.Title, d.Description, d.Icon, d.Category, d.Rarity,
		d.Criteria.Type, d.Criteria.Target, d.Criteria.Field,
		d.Rewards.Points, d.Rewards.Badge, d.Rewards.Title, d.IsActive, d.IsSecret,
	)
	created, err := scanDefinition(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Definition{}, fmt.Errorf("%w: achievement %q already exists", apperr.ErrConflict, d.Name)
		}
		return Definition{}, fmt.Errorf("insert achievement: %w", err)
	}
	return created, nil
}

func (s *PostgresDefinitionStore) GetByName(ctx context.Context, name string) (Definition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM achievements WHERE name = $1`, name)
	return scanDefinition(row)
}

func (s *PostgresDefinitionStore) Get(ctx context.Context, id uuid.UUID) (Definition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM achievements WHERE id = $1`, id)
	return scanDefinition(row)
}

func (s *PostgresDefinitionStore) ListActive(ctx context.Context) ([]Definition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+definitionColumns+` FROM achievements
		 WHERE is_active ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list active achievements: %w", err)
	}
	defer rows.Close()
	return collectDefinitions(rows)
}

func (s *PostgresDefinitionStore) List(ctx context.Context, f DefinitionFilter) ([]Definition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+definitionColumns+` FROM achievements
		WHERE is_active
		  AND ($1 = '' OR category = $1)
		  AND ($2 = '' OR rarity = $2)
		  AND ($3 OR NOT is_secret)
		ORDER BY created_at, id`,
		f.Category, f.Rarity, f.IncludeSecret)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()
	return collectDefinitions(rows)
}

func collectDefinitions(rows pgx.Rows) ([]Definition, error) {
	out := make([]Definition, 0, 16)
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PostgresLedgerStore persists per-user achievement progress.
type PostgresLedgerStore struct {
	pool *pgxpool.Pool
}

func NewPostgresLedgerStore(pool *pgxpool.Pool) *PostgresLedgerStore {
	return &PostgresLedgerStore{pool: pool}
}

const ledgerColumns = `user_id, achievement_id, current_value, target_value, percentage,
	is_completed, unlocked_at, is_displayed, metadata, created_at, updated_at`

func scanLedgerEntry(row rowScanner, extra ...any) (LedgerEntry, error) {
	var (
		e    LedgerEntry
		meta []byte
	)
	dest := []any{
		&e.UserID, &e.AchievementID, &e.Progress.Current, &e.Progress.Target,
		&e.Progress.Percentage, &e.IsCompleted, &e.UnlockedAt, &e.IsDisplayed,
		&meta, &e.CreatedAt, &e.UpdatedAt,
	}
	dest = append(dest, extra...)
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerEntry{}, apperr.NotFoundf("achievement progress not found")
	}
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("scan achievement progress: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return LedgerEntry{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return e, nil
}

func (s *PostgresLedgerStore) Get(ctx context.Context, userID, achievementID uuid.UUID) (LedgerEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM user_achievements
		 WHERE user_id = $1 AND achievement_id = $2`, userID, achievementID)
	return scanLedgerEntry(row)
}

// UpsertProgress races safely on the (user_id, achievement_id) unique index:
// current_value only grows, is_completed latches, and unlocked_at is stamped
// on the single statement that crosses the target. The prev CTE captures the
// pre-statement completion flag so callers can detect the crossing.
func (s *PostgresLedgerStore) UpsertProgress(ctx context.Context, userID, achievementID uuid.UUID, current, target float64, points int) (LedgerEntry, bool, error) {
	meta, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("encode metadata: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT is_completed FROM user_achievements
			WHERE user_id = $1 AND achievement_id = $2
		), up AS (
			INSERT INTO user_achievements (
				user_id, achievement_id, current_value, target_value, percentage,
				is_completed, unlocked_at, is_displayed, metadata, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4,
				LEAST(100, ROUND($3 / NULLIF($4, 0) * 100))::int,
				$3 >= $4,
				CASE WHEN $3 >= $4 THEN now() END,
				true, $5, now(), now()
			)
			ON CONFLICT (user_id, achievement_id) DO UPDATE SET
				current_value = GREATEST(user_achievements.current_value, EXCLUDED.current_value),
				target_value  = EXCLUDED.target_value,
				percentage    = LEAST(100, ROUND(
					GREATEST(user_achievements.current_value, EXCLUDED.current_value)
					/ NULLIF(EXCLUDED.target_value, 0) * 100))::int,
				is_completed  = user_achievements.is_completed
					OR GREATEST(user_achievements.current_value, EXCLUDED.current_value) >= EXCLUDED.target_value,
				unlocked_at   = CASE
					WHEN user_achievements.is_completed THEN user_achievements.unlocked_at
					WHEN GREATEST(user_achievements.current_value, EXCLUDED.current_value) >= EXCLUDED.target_value THEN now()
					ELSE NULL END,
				metadata      = EXCLUDED.metadata,
				updated_at    = now()
			RETURNING `+ledgerColumns+`
		)
		SELECT up.*, COALESCE((SELECT is_completed FROM prev), false) FROM up`,
		userID, achievementID, current, target, meta)

	var wasCompleted bool
	entry, err := scanLedgerEntry(row, &wasCompleted)
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("upsert achievement progress: %w", err)
	}
	return entry, wasCompleted, nil
}

func (s *PostgresLedgerStore) ListByUser(ctx context.Context, userID uuid.UUID, f LedgerFilter) ([]UserAchievement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixed("ua", ledgerColumns)+`, `+prefixed("a", definitionColumns)+`
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.user_id = $1
		  AND ($2 = '' OR a.category = $2)
		  AND ($3::bool IS NULL OR ua.is_completed = $3)
		  AND ($4::bool IS NULL OR ua.is_displayed = $4)
		ORDER BY ua.updated_at DESC`,
		userID, f.Category, f.Completed, f.Displayed)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	defer rows.Close()
	return collectUserAchievements(rows)
}

func (s *PostgresLedgerStore) RecentUnlocks(ctx context.Context, userID uuid.UUID, limit int) ([]UserAchievement, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixed("ua", ledgerColumns)+`, `+prefixed("a", definitionColumns)+`
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.user_id = $1 AND ua.is_completed
		ORDER BY ua.unlocked_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent unlocks: %w", err)
	}
	defer rows.Close()
	return collectUserAchievements(rows)
}

func collectUserAchievements(rows pgx.Rows) ([]UserAchievement, error) {
	out := make([]UserAchievement, 0, 16)
	for rows.Next() {
		var (
			ua   UserAchievement
			meta []byte
		)
		e, d := &ua.Entry, &ua.Definition
		err := rows.Scan(
			&e.UserID, &e.AchievementID, &e.Progress.Current, &e.Progress.Target,
			&e.Progress.Percentage, &e.IsCompleted, &e.UnlockedAt, &e.IsDisplayed,
			&meta, &e.CreatedAt, &e.UpdatedAt,
			&d.ID, &d.Name, &d.Title, &d.Description, &d.Icon, &d.Category, &d.Rarity,
			&d.Criteria.Type, &d.Criteria.Target, &d.Criteria.Field,
			&d.Rewards.Points, &d.Rewards.Badge, &d.Rewards.Title,
			&d.IsActive, &d.IsSecret, &d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user achievement: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

func (s *PostgresLedgerStore) Leaderboard(ctx context.Context, category string, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ua.user_id, COALESCE(u.username, ''),
		       COALESCE(SUM(a.points), 0)::int AS total_points,
		       COUNT(*)::int AS completed,
		       MAX(ua.unlocked_at)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		LEFT JOIN users u ON u.id = ua.user_id
		WHERE ua.is_completed AND ($1 = '' OR a.category = $1)
		GROUP BY ua.user_id, u.username
		ORDER BY total_points DESC, completed DESC
		LIMIT $2`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("achievement leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]LeaderboardRow, 0, limit)
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Username, &r.TotalPoints, &r.CompletedAchievements, &r.LastUnlock); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresLedgerStore) SetDisplayed(ctx context.Context, userID, achievementID uuid.UUID, displayed bool) (LedgerEntry, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE user_achievements
		SET is_displayed = $3, updated_at = now()
		WHERE user_id = $1 AND achievement_id = $2
		RETURNING `+ledgerColumns,
		userID, achievementID, displayed)
	return scanLedgerEntry(row)
}

func (s *PostgresLedgerStore) ProgressByCategory(ctx context.Context, userID uuid.UUID) ([]CategoryProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.category,
		       COUNT(*)::int,
		       COUNT(*) FILTER (WHERE ua.is_completed)::int,
		       COALESCE(AVG(ua.percentage), 0)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.user_id = $1
		GROUP BY a.category
		ORDER BY a.category`, userID)
	if err != nil {
		return nil, fmt.Errorf("achievement category progress: %w", err)
	}
	defer rows.Close()

	out := make([]CategoryProgress, 0, 5)
	for rows.Next() {
		var c CategoryProgress
		if err := rows.Scan(&c.Category, &c.Total, &c.Completed, &c.AverageProgress); err != nil {
			return nil, fmt.Errorf("scan category progress: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// prefixed qualifies each column in a column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
