package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/platform/apperr"
	"github.com/example/anime-tracker/internal/platform/events"
	"github.com/example/anime-tracker/internal/progress"
)

// EpisodeEvent is one playback heartbeat from the client.
type EpisodeEvent struct {
	EpisodeNumber      int
	EpisodeTitle       string
	WatchedTimeSeconds int
	TotalTimeSeconds   int
	Status             EventStatus // optional; empty defaults to started/watching
	Quality            string
	AudioLanguage      string
	SubtitleLanguage   string
	Device             string
}

// Service applies the playback rules on top of the repository.
type Service struct {
	Repo   Repository
	Titles catalog.Provider
	Cache  progress.Invalidator // optional
	Events *events.Publisher    // nil-safe
	Log    *zap.Logger
}

// RecordEpisodeEvent validates and applies a playback report. Idempotent
// per (user, title, episode): repeated identical calls converge on one row.
// Watched time is clamped monotonically non-decreasing; crossing 90%
// progress promotes the record to completed regardless of the reported
// status.
func (s *Service) RecordEpisodeEvent(ctx context.Context, userID, titleID uuid.UUID, episodeID string, in EpisodeEvent) (Event, error) {
	if episodeID == "" {
		return Event{}, apperr.Validationf("episodeId is required")
	}
	if in.TotalTimeSeconds <= 0 {
		return Event{}, apperr.Validationf("totalTime must be positive")
	}
	if in.WatchedTimeSeconds < 0 {
		return Event{}, apperr.Validationf("watchedTime must not be negative")
	}
	if in.Status != "" && !in.Status.Valid() {
		return Event{}, apperr.Validationf("unknown status %q", in.Status)
	}
	if in.EpisodeNumber < 1 {
		return Event{}, apperr.Validationf("episodeNumber must be at least 1")
	}

	title, err := s.Titles.GetTitle(ctx, titleID)
	if err != nil {
		return Event{}, err
	}
	if !title.Watchable() {
		return Event{}, apperr.NotFoundf("title %s is not available", titleID)
	}

	watched := in.WatchedTimeSeconds
	if existing, err := s.Repo.Get(ctx, userID, titleID, episodeID); err == nil {
		if existing.WatchedTimeSeconds > watched {
			watched = existing.WatchedTimeSeconds
		}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return Event{}, err
	}

	status := in.Status
	if status == "" {
		status = StatusStarted
	}
	percent := Percent(watched, in.TotalTimeSeconds)
	ev := Event{
		UserID:             userID,
		TitleID:            titleID,
		EpisodeID:          episodeID,
		EpisodeNumber:      in.EpisodeNumber,
		EpisodeTitle:       in.EpisodeTitle,
		WatchedTimeSeconds: watched,
		TotalTimeSeconds:   in.TotalTimeSeconds,
		ProgressPercent:    percent,
		Status:             status,
		Quality:            defaultStr(in.Quality, "720p"),
		AudioLanguage:      defaultStr(in.AudioLanguage, "japanese"),
		SubtitleLanguage:   defaultStr(in.SubtitleLanguage, "russian"),
		Device:             defaultStr(in.Device, "unknown"),
	}
	if percent >= completedThreshold && ev.Status != StatusCompleted {
		ev.Status = StatusCompleted
	}
	if ev.Status == StatusCompleted {
		now := time.Now().UTC()
		ev.CompletedAt = &now
	}

	saved, err := s.Repo.Upsert(ctx, ev)
	if err != nil {
		return Event{}, err
	}

	if s.Cache != nil {
		s.Cache.Invalidate(ctx, userID)
	}
	s.Events.Publish(events.SubjectEpisodeRecorded, "episode_recorded",
		userID.String(), titleID.String(), map[string]any{
			"episode_id":       episodeID,
			"progress_percent": saved.ProgressPercent,
			"status":           string(saved.Status),
		})
	return saved, nil
}

// RegisterPause bumps the pause counter for an existing record.
func (s *Service) RegisterPause(ctx context.Context, userID, titleID uuid.UUID, episodeID string) (Event, error) {
	return s.Repo.Increment(ctx, userID, titleID, episodeID, CounterPause)
}

// RegisterSeek bumps the seek counter for an existing record.
func (s *Service) RegisterSeek(ctx context.Context, userID, titleID uuid.UUID, episodeID string) (Event, error) {
	return s.Repo.Increment(ctx, userID, titleID, episodeID, CounterSeek)
}

// List returns the user's history, most recent first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Event, error) {
	return s.Repo.ListByUser(ctx, userID, f)
}

// ContinueWatching returns unfinished episodes, most recent first.
func (s *Service) ContinueWatching(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error) {
	return s.Repo.ContinueWatching(ctx, userID, limit)
}

// RecentlyWatched is the plain recency view over the history.
func (s *Service) RecentlyWatched(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error) {
	return s.Repo.ListByUser(ctx, userID, ListFilter{Limit: limit})
}

// Clear removes the user's history, optionally scoped to one title.
func (s *Service) Clear(ctx context.Context, userID uuid.UUID, titleID *uuid.UUID) (int64, error) {
	n, err := s.Repo.Clear(ctx, userID, titleID)
	if err != nil {
		return 0, err
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, userID)
	}
	return n, nil
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
