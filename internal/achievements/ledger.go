package achievements

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/identity"
)

// Service is the read/administration surface over definitions and the
// ledger, used by the HTTP layer.
type Service struct {
	Definitions DefinitionRepository
	Ledger      LedgerRepository
	Users       identity.Store
}

// CreateDefinition validates and stores an admin-authored achievement.
func (s *Service) CreateDefinition(ctx context.Context, d Definition) (Definition, error) {
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return s.Definitions.Create(ctx, d)
}

func (s *Service) ListDefinitions(ctx context.Context, f DefinitionFilter) ([]Definition, error) {
	return s.Definitions.List(ctx, f)
}

// GetForUser lists the user's ledger joined with definitions, newest
// activity first.
func (s *Service) GetForUser(ctx context.Context, userID uuid.UUID, f LedgerFilter) ([]UserAchievement, error) {
	return s.Ledger.ListByUser(ctx, userID, f)
}

func (s *Service) RecentUnlocks(ctx context.Context, userID uuid.UUID, limit int) ([]UserAchievement, error) {
	return s.Ledger.RecentUnlocks(ctx, userID, limit)
}

// Leaderboard ranks users by total reward points from completed
// achievements, then by completed count. Usernames missing from the store
// rows are backfilled from identity.
func (s *Service) Leaderboard(ctx context.Context, category string, limit int) ([]LeaderboardRow, error) {
	rows, err := s.Ledger.Leaderboard(ctx, category, limit)
	if err != nil {
		return nil, err
	}

	var missing []uuid.UUID
	for _, r := range rows {
		if r.Username == "" {
			missing = append(missing, r.UserID)
		}
	}
	if len(missing) > 0 && s.Users != nil {
		names, err := s.Users.Usernames(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("resolve leaderboard usernames: %w", err)
		}
		for i := range rows {
			if rows[i].Username == "" {
				rows[i].Username = names[rows[i].UserID]
			}
		}
	}
	return rows, nil
}

// SetDisplayed toggles whether an earned achievement shows on the profile.
func (s *Service) SetDisplayed(ctx context.Context, userID, achievementID uuid.UUID, displayed bool) (LedgerEntry, error) {
	return s.Ledger.SetDisplayed(ctx, userID, achievementID, displayed)
}

func (s *Service) ProgressByCategory(ctx context.Context, userID uuid.UUID) ([]CategoryProgress, error) {
	return s.Ledger.ProgressByCategory(ctx, userID)
}
