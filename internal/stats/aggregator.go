package stats

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/history"
	"github.com/example/anime-tracker/internal/platform/apperr"
	"github.com/example/anime-tracker/internal/progress"
)

// SocialCounter supplies the social slice of the snapshot (favorites,
// friendships, comments live outside the tracker core).
type SocialCounter interface {
	FavoritesCount(ctx context.Context, userID uuid.UUID) (int, error)
	FriendsCount(ctx context.Context, userID uuid.UUID) (int, error)
	CommentsCount(ctx context.Context, userID uuid.UUID) (int, error)
	// FavoriteTitleIDs lists the user's favorited titles for genre folds.
	FavoriteTitleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// highRatingFloor is the rating at which a watch-progress entry counts
// toward genre preference.
const highRatingFloor = 8

// Aggregator computes user snapshots. Reads only; the optional cache in
// front of it is invalidated by the mutating services.
type Aggregator struct {
	Progress progress.Repository
	History  history.Repository
	Titles   catalog.Provider
	Social   SocialCounter // optional
	Cache    *Cache        // nil-safe
	Log      *zap.Logger
}

// ComputeUserStats builds the user's snapshot. Missing related data
// (a deleted title, an unavailable social store) degrades to zero values
// for the affected fields instead of failing the whole aggregation.
func (a *Aggregator) ComputeUserStats(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	if snap, ok := a.Cache.Get(ctx, userID); ok {
		return snap, nil
	}

	var snap Snapshot

	pa, err := a.Progress.AggregateByUser(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Watching = pa.Watching
	snap.Completed = pa.Completed
	snap.OnHold = pa.OnHold
	snap.Dropped = pa.Dropped
	snap.PlanToWatch = pa.PlanToWatch
	snap.TotalEntries = pa.TotalEntries
	snap.TotalEpisodes = pa.TotalEpisodes
	snap.TotalMinutes = pa.TotalMinutes
	snap.AverageRating = pa.AverageRating
	snap.RatedCount = pa.RatedCount

	ha, err := a.History.AggregateByUser(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.EpisodesCompleted = ha.CompletedEpisodes
	snap.TotalWatchSeconds = ha.TotalWatchSeconds
	snap.AverageProgress = ha.AverageProgress

	snap.UniqueGenres = a.countUniqueGenres(ctx, userID)

	if a.Social != nil {
		snap.FavoritesCount = a.socialCount(ctx, userID, a.Social.FavoritesCount, "favorites")
		snap.FriendsCount = a.socialCount(ctx, userID, a.Social.FriendsCount, "friends")
		snap.CommentsCount = a.socialCount(ctx, userID, a.Social.CommentsCount, "comments")
	}

	a.Cache.Set(ctx, userID, snap)
	return snap, nil
}

// ComputeTopGenres returns the user's n most frequent genres, derived
// from favorites and highly-rated watch-progress entries. Ties keep
// first-encountered order. Never fails: users without qualifying history
// get an empty list.
func (a *Aggregator) ComputeTopGenres(ctx context.Context, userID uuid.UUID, n int) []string {
	if n <= 0 {
		n = 5
	}

	counts := make(map[string]int)
	var order []string
	record := func(titleID uuid.UUID) {
		title, err := a.Titles.GetTitle(ctx, titleID)
		if err != nil {
			// A vanished title drops out of the fold, not the whole result.
			if !errors.Is(err, apperr.ErrNotFound) {
				a.Log.Warn("stats: title lookup failed",
					zap.String("title_id", titleID.String()), zap.Error(err))
			}
			return
		}
		for _, g := range title.Genres {
			if counts[g] == 0 {
				order = append(order, g)
			}
			counts[g]++
		}
	}

	if a.Social != nil {
		if favs, err := a.Social.FavoriteTitleIDs(ctx, userID); err == nil {
			for _, id := range favs {
				record(id)
			}
		} else {
			a.Log.Warn("stats: favorites unavailable", zap.Error(err))
		}
	}

	entries, err := a.Progress.ListByUser(ctx, userID, progress.ListFilter{Limit: -1})
	if err != nil {
		a.Log.Warn("stats: progress list failed", zap.Error(err))
	}
	for _, e := range entries {
		if e.Rating != nil && *e.Rating >= highRatingFloor {
			record(e.TitleID)
		}
	}

	// Stable: order holds first-encountered sequence, so equal counts
	// keep their original relative position.
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		order = []string{}
	}
	return order
}

// countUniqueGenres folds distinct genres across every title the user
// has watch history for.
func (a *Aggregator) countUniqueGenres(ctx context.Context, userID uuid.UUID) int {
	ids, err := a.History.DistinctTitleIDs(ctx, userID)
	if err != nil {
		a.Log.Warn("stats: history titles failed", zap.Error(err))
		return 0
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		title, err := a.Titles.GetTitle(ctx, id)
		if err != nil {
			continue
		}
		for _, g := range title.Genres {
			seen[g] = true
		}
	}
	return len(seen)
}

func (a *Aggregator) socialCount(ctx context.Context, userID uuid.UUID, fn func(context.Context, uuid.UUID) (int, error), what string) int {
	n, err := fn(ctx, userID)
	if err != nil {
		a.Log.Warn("stats: social count failed", zap.String("counter", what), zap.Error(err))
		return 0
	}
	return n
}
