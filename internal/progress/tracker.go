package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/platform/apperr"
	"github.com/example/anime-tracker/internal/platform/events"
)

// Recomputer re-aggregates per-title statistics after a progress change.
// Satisfied by the catalog store. Called best-effort; failures never
// surface to the user operation.
type Recomputer interface {
	RecomputeStats(ctx context.Context, titleID uuid.UUID) error
}

// Invalidator drops a user's cached stats snapshot after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID)
}

// Tracker applies the progress rules on top of the repository.
type Tracker struct {
	Repo      Repository
	Titles    catalog.Provider
	Recompute Recomputer        // optional
	Cache     Invalidator       // optional
	Events    *events.Publisher // nil-safe
	Log       *zap.Logger
}

// Result is the outcome of one progress upsert.
type Result struct {
	Entry Entry
	// AutoCompleted is set when episodesWatched reaching the title's total
	// forced the status to completed, overriding the caller's status.
	AutoCompleted bool
}

// UpsertProgress validates and applies a progress report for (user, title).
// Decreasing counters are clamped to the stored value rather than rejected.
func (t *Tracker) UpsertProgress(ctx context.Context, userID, titleID uuid.UUID, upd Update) (Result, error) {
	if err := validateUpdate(upd); err != nil {
		return Result{}, err
	}

	title, err := t.Titles.GetTitle(ctx, titleID)
	if err != nil {
		return Result{}, err
	}
	if !title.Watchable() {
		return Result{}, apperr.NotFoundf("title %s is not available", titleID)
	}

	now := time.Now().UTC()
	entry, err := t.Repo.Get(ctx, userID, titleID)
	created := false
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return Result{}, err
		}
		created = true
		entry = Entry{
			UserID:         userID,
			TitleID:        titleID,
			Status:         StatusPlanToWatch,
			CurrentEpisode: 1,
			Priority:       "medium",
		}
	}
	prevStatus := entry.Status

	touched := created
	if upd.Status != nil && *upd.Status != entry.Status {
		// Picking a completed title back up counts as a rewatch.
		if prevStatus == StatusCompleted && *upd.Status == StatusWatching {
			entry.RewatchCount++
		}
		entry.Status = *upd.Status
		touched = true
	}
	if upd.EpisodesWatched != nil && *upd.EpisodesWatched > entry.EpisodesWatched {
		entry.EpisodesWatched = *upd.EpisodesWatched
		touched = true
	}
	if upd.CurrentEpisode != nil && *upd.CurrentEpisode > entry.CurrentEpisode {
		entry.CurrentEpisode = *upd.CurrentEpisode
		touched = true
	}
	if upd.TimeWatchedMinutes != nil && *upd.TimeWatchedMinutes > entry.TimeWatchedMinutes {
		entry.TimeWatchedMinutes = *upd.TimeWatchedMinutes
		touched = true
	}
	if upd.Rating != nil {
		entry.Rating = upd.Rating
	}
	if upd.Notes != nil {
		entry.Notes = *upd.Notes
	}
	if upd.Priority != nil {
		entry.Priority = *upd.Priority
	}
	if upd.Tags != nil {
		entry.Tags = *upd.Tags
	}
	if upd.IsPrivate != nil {
		entry.IsPrivate = *upd.IsPrivate
	}

	res := Result{}
	// Finishing every episode wins over whatever status the caller sent.
	if title.TotalEpisodes > 0 && entry.EpisodesWatched >= title.TotalEpisodes && entry.Status != StatusCompleted {
		entry.Status = StatusCompleted
		res.AutoCompleted = true
	}

	if entry.Status == StatusWatching && entry.StartDate == nil {
		d := now
		entry.StartDate = &d
	}
	if entry.Status == StatusCompleted && (created || prevStatus != StatusCompleted) && entry.FinishDate == nil {
		d := now
		entry.FinishDate = &d
	}
	if touched {
		entry.LastWatched = now
	}

	saved, err := t.Repo.Upsert(ctx, entry)
	if err != nil {
		return Result{}, err
	}
	res.Entry = saved

	t.afterMutation(ctx, userID, titleID, map[string]any{
		"status":           string(saved.Status),
		"episodes_watched": saved.EpisodesWatched,
		"auto_completed":   res.AutoCompleted,
	})
	return res, nil
}

// Remove deletes the user's entry for a title.
func (t *Tracker) Remove(ctx context.Context, userID, titleID uuid.UUID) error {
	if err := t.Repo.Delete(ctx, userID, titleID); err != nil {
		return err
	}
	t.afterMutation(ctx, userID, titleID, map[string]any{"removed": true})
	return nil
}

// SetRating scores a title without touching the rest of the entry.
func (t *Tracker) SetRating(ctx context.Context, userID, titleID uuid.UUID, rating int) (Result, error) {
	return t.UpsertProgress(ctx, userID, titleID, Update{Rating: &rating})
}

// List returns the user's watch list, most recently watched first.
func (t *Tracker) List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Entry, error) {
	return t.Repo.ListByUser(ctx, userID, f)
}

// afterMutation runs the best-effort side effects of a progress change:
// title stats recompute, stats cache invalidation, event publish.
func (t *Tracker) afterMutation(ctx context.Context, userID, titleID uuid.UUID, props map[string]any) {
	if t.Recompute != nil {
		if err := t.Recompute.RecomputeStats(ctx, titleID); err != nil {
			t.Log.Warn("progress: title stats recompute failed",
				zap.String("title_id", titleID.String()), zap.Error(err))
		}
	}
	if t.Cache != nil {
		t.Cache.Invalidate(ctx, userID)
	}
	t.Events.Publish(events.SubjectProgressUpdated, "progress_updated",
		userID.String(), titleID.String(), props)
}

func validateUpdate(upd Update) error {
	if upd.Status != nil && !upd.Status.Valid() {
		return apperr.Validationf("unknown status %q", *upd.Status)
	}
	if upd.Rating != nil && (*upd.Rating < 1 || *upd.Rating > 10) {
		return apperr.Validationf("rating must be an integer between 1 and 10")
	}
	if upd.EpisodesWatched != nil && *upd.EpisodesWatched < 0 {
		return apperr.Validationf("episodesWatched must not be negative")
	}
	if upd.CurrentEpisode != nil && *upd.CurrentEpisode < 1 {
		return apperr.Validationf("currentEpisode must be at least 1")
	}
	if upd.TimeWatchedMinutes != nil && *upd.TimeWatchedMinutes < 0 {
		return apperr.Validationf("timeWatchedMinutes must not be negative")
	}
	return nil
}
