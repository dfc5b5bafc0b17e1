// Package achievements turns user statistics snapshots into achievement
// progress and unlocks, and owns the per-user unlock ledger.
package achievements

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

// CriteriaType is the category of rule used to compute progress.
type CriteriaType string

const (
	CriteriaCount     CriteriaType = "count"
	CriteriaStreak    CriteriaType = "streak"
	CriteriaDiversity CriteriaType = "diversity"
	CriteriaTime      CriteriaType = "time"
	CriteriaRating    CriteriaType = "rating"
	CriteriaCustom    CriteriaType = "custom"
)

// Criteria describes how progress toward an achievement is measured.
// Custom criteria dispatch through the predicate registry instead of a
// snapshot field.
type Criteria struct {
	Type   CriteriaType `json:"type"`
	Target float64      `json:"target"`
	Field  string       `json:"field"`
}

// Rewards are granted on completion.
type Rewards struct {
	Points int    `json:"points"`
	Badge  string `json:"badge,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Definition is one global, admin-authored achievement.
type Definition struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"` // unique key
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Category    string    `json:"category"` // watching|social|exploration|time|special
	Rarity      string    `json:"rarity"`   // common|rare|epic|legendary|mythic
	Criteria    Criteria  `json:"criteria"`
	Rewards     Rewards   `json:"rewards"`
	IsActive    bool      `json:"is_active"`
	IsSecret    bool      `json:"is_secret"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate enforces the definition invariants: target and field are
// required for every criteria type except custom.
func (d Definition) Validate() error {
	if d.Name == "" {
		return apperr.Validationf("name is required")
	}
	switch d.Criteria.Type {
	case CriteriaCount, CriteriaStreak, CriteriaDiversity, CriteriaTime, CriteriaRating:
		if d.Criteria.Target <= 0 {
			return apperr.Validationf("criteria target is required for type %q", d.Criteria.Type)
		}
		if d.Criteria.Field == "" {
			return apperr.Validationf("criteria field is required for type %q", d.Criteria.Type)
		}
	case CriteriaCustom:
		// Dispatches by achievement name; no target or field needed.
	default:
		return apperr.Validationf("unknown criteria type %q", d.Criteria.Type)
	}
	return nil
}

// Progress is the current/target pair on a ledger entry.
type Progress struct {
	Current    float64 `json:"current"`
	Target     float64 `json:"target"`
	Percentage int     `json:"percentage"`
}

// PercentOf derives the capped percentage for a current/target pair.
func PercentOf(current, target float64) int {
	if target <= 0 {
		return 0
	}
	p := int(current/target*100 + 0.5)
	if p > 100 {
		p = 100
	}
	return p
}

// LedgerEntry is the per-user, per-achievement durable record.
// IsCompleted is monotonic: once true it never reverts.
type LedgerEntry struct {
	UserID        uuid.UUID      `json:"user_id"`
	AchievementID uuid.UUID      `json:"achievement_id"`
	Progress      Progress       `json:"progress"`
	IsCompleted   bool           `json:"is_completed"`
	UnlockedAt    *time.Time     `json:"unlocked_at,omitempty"`
	IsDisplayed   bool           `json:"is_displayed"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// UserAchievement joins a ledger entry with its definition for reads.
type UserAchievement struct {
	Entry      LedgerEntry `json:"entry"`
	Definition Definition  `json:"definition"`
}

// LeaderboardRow is one user's aggregate over completed achievements.
type LeaderboardRow struct {
	UserID                uuid.UUID  `json:"user_id"`
	Username              string     `json:"username,omitempty"`
	TotalPoints           int        `json:"total_points"`
	CompletedAchievements int        `json:"completed_achievements"`
	LastUnlock            *time.Time `json:"last_unlock,omitempty"`
}

// CategoryProgress summarizes one user's ledger per achievement category.
type CategoryProgress struct {
	Category        string  `json:"category"`
	Total           int     `json:"total"`
	Completed       int     `json:"completed"`
	AverageProgress float64 `json:"average_progress"`
}

// DefinitionFilter narrows definition listings.
type DefinitionFilter struct {
	Category      string
	Rarity        string
	IncludeSecret bool
}

// LedgerFilter narrows per-user ledger listings.
type LedgerFilter struct {
	Category  string
	Completed *bool
	Displayed *bool
}

// DefinitionRepository defines persistence for achievement definitions.
// Definitions are read-mostly; writes are administrative.
type DefinitionRepository interface {
	Create(ctx context.Context, d Definition) (Definition, error)
	GetByName(ctx context.Context, name string) (Definition, error)
	Get(ctx context.Context, id uuid.UUID) (Definition, error)
	// ListActive returns active definitions in stable insertion order so
	// evaluation passes are deterministic for a given snapshot.
	ListActive(ctx context.Context) ([]Definition, error)
	List(ctx context.Context, f DefinitionFilter) ([]Definition, error)
}

// LedgerRepository defines persistence for the unlock ledger.
type LedgerRepository interface {
	Get(ctx context.Context, userID, achievementID uuid.UUID) (LedgerEntry, error)
	// UpsertProgress applies the monotonic compare-and-swap on the unique
	// (user, achievement) pair: current never regresses, completion latches
	// and stamps unlocked_at exactly once. The bool result reports whether
	// the entry was already completed before this call, so the evaluator
	// can emit each unlock exactly once.
	UpsertProgress(ctx context.Context, userID, achievementID uuid.UUID, current, target float64, points int) (LedgerEntry, bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, f LedgerFilter) ([]UserAchievement, error)
	RecentUnlocks(ctx context.Context, userID uuid.UUID, limit int) ([]UserAchievement, error)
	// Leaderboard groups completed entries by user, summing reward points.
	// Ordered by points desc, completed count desc; ties keep stable
	// insertion order. Empty category means all categories.
	Leaderboard(ctx context.Context, category string, limit int) ([]LeaderboardRow, error)
	SetDisplayed(ctx context.Context, userID, achievementID uuid.UUID, displayed bool) (LedgerEntry, error)
	ProgressByCategory(ctx context.Context, userID uuid.UUID) ([]CategoryProgress, error)
}
