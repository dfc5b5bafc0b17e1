package achievements

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/platform/apperr"
	"github.com/example/anime-tracker/internal/platform/events"
	"github.com/example/anime-tracker/internal/stats"
)

// Unlock is an achievement completed by the evaluation pass that emitted it.
type Unlock struct {
	Definition Definition  `json:"definition"`
	Entry      LedgerEntry `json:"entry"`
}

// Evaluator walks the active definitions against a statistics snapshot and
// advances the ledger. Progress is monotonic; each unlock is reported once,
// on the pass that crosses the target.
type Evaluator struct {
	Definitions DefinitionRepository
	Ledger      LedgerRepository
	Registry    *Registry
	Events      *events.Publisher
	Log         *zap.Logger
}

// Evaluate runs every active definition for the user and returns the
// achievements newly unlocked by this pass. A single failing definition is
// logged and skipped so one bad rule cannot block the rest.
func (e *Evaluator) Evaluate(ctx context.Context, userID uuid.UUID, snap stats.Snapshot) ([]Unlock, error) {
	defs, err := e.Definitions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load achievement definitions: %w", err)
	}

	var unlocked []Unlock
	for _, def := range defs {
		current, target, ok := e.progressFor(ctx, userID, def, snap)
		if !ok {
			continue
		}
		entry, wasCompleted, err := e.Ledger.UpsertProgress(ctx, userID, def.ID, current, target, def.Rewards.Points)
		if err != nil {
			e.Log.Warn("achievement progress write failed",
				zap.String("achievement", def.Name),
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}
		if entry.IsCompleted && !wasCompleted {
			unlocked = append(unlocked, Unlock{Definition: def, Entry: entry})
		}
	}

	for _, u := range unlocked {
		e.Events.Publish(events.SubjectAchievementUnlocked, "achievement_unlocked",
			userID.String(), "", map[string]any{
				"achievement": u.Definition.Name,
				"category":    u.Definition.Category,
				"rarity":      u.Definition.Rarity,
				"points":      u.Definition.Rewards.Points,
			})
	}
	return unlocked, nil
}

// progressFor maps one definition onto the snapshot. The bool result is
// false when the definition cannot be scored (unknown field, unregistered
// predicate, predicate error) and the pass should leave its ledger entry
// untouched.
func (e *Evaluator) progressFor(ctx context.Context, userID uuid.UUID, def Definition, snap stats.Snapshot) (current, target float64, ok bool) {
	target = def.Criteria.Target

	switch def.Criteria.Type {
	case CriteriaCount, CriteriaTime:
		val, found := snap.Field(def.Criteria.Field)
		if !found {
			e.Log.Warn("achievement references unknown stats field",
				zap.String("achievement", def.Name),
				zap.String("field", def.Criteria.Field))
			return 0, 0, false
		}
		return min(val, target), target, true

	case CriteriaRating:
		val, found := snap.Field(def.Criteria.Field)
		if !found {
			return 0, 0, false
		}
		// Partial credit below the bar, full credit at or above it.
		if val >= target {
			return target, target, true
		}
		return val, target, true

	case CriteriaStreak:
		// Streaks count sustained engagement, measured here as library
		// size rather than per-day activity.
		return min(float64(snap.TotalEntries), target), target, true

	case CriteriaDiversity:
		return min(float64(snap.UniqueGenres), target), target, true

	case CriteriaCustom:
		pred, found := e.Registry.Lookup(def.Name)
		if !found {
			e.Log.Warn("custom achievement has no registered predicate",
				zap.String("achievement", def.Name))
			return 0, 0, false
		}
		holds, err := pred(ctx, userID, snap)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			e.Log.Warn("custom achievement predicate failed",
				zap.String("achievement", def.Name),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
		if err != nil || !holds {
			return 0, 0, false
		}
		if target <= 0 {
			target = 1
		}
		return target, target, true
	}

	return 0, 0, false
}
