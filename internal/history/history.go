// Package history owns per-episode playback records: heartbeat progress,
// pause/seek counters and the 90% auto-completion rule.
package history

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the playback state of one episode record.
type EventStatus string

const (
	StatusStarted   EventStatus = "started"
	StatusWatching  EventStatus = "watching"
	StatusPaused    EventStatus = "paused"
	StatusCompleted EventStatus = "completed"
	StatusSkipped   EventStatus = "skipped"
)

// Valid reports whether s is a known playback status.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusStarted, StatusWatching, StatusPaused, StatusCompleted, StatusSkipped:
		return true
	}
	return false
}

// completedThreshold is the watch ratio at which an episode auto-promotes
// to completed regardless of the reported status.
const completedThreshold = 90

// Retention is how long history events are kept before the sweeper
// removes them.
const Retention = 365 * 24 * time.Hour

// Event is one per-episode playback record. Identity is the unique
// triple (UserID, TitleID, EpisodeID).
type Event struct {
	UserID             uuid.UUID   `json:"user_id"`
	TitleID            uuid.UUID   `json:"title_id"`
	EpisodeID          string      `json:"episode_id"`
	EpisodeNumber      int         `json:"episode_number"`
	EpisodeTitle       string      `json:"episode_title,omitempty"`
	WatchedTimeSeconds int         `json:"watched_time_seconds"`
	TotalTimeSeconds   int         `json:"total_time_seconds"`
	ProgressPercent    int         `json:"progress_percent"`
	Status             EventStatus `json:"status"`
	PauseCount         int         `json:"pause_count"`
	SeekCount          int         `json:"seek_count"`
	Quality            string      `json:"quality,omitempty"`
	AudioLanguage      string      `json:"audio_language,omitempty"`
	SubtitleLanguage   string      `json:"subtitle_language,omitempty"`
	Device             string      `json:"device,omitempty"`
	StartedAt          time.Time   `json:"started_at"`
	LastWatchedAt      time.Time   `json:"last_watched_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Percent derives the progress percentage from watched and total seconds,
// capped at 100.
func Percent(watched, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(watched) / float64(total) * 100))
	if p > 100 {
		p = 100
	}
	return p
}

// ListFilter narrows ListByUser results.
type ListFilter struct {
	TitleID  *uuid.UUID
	Status   *EventStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// Counter selects which monotonic counter Increment bumps.
type Counter string

const (
	CounterPause Counter = "pause"
	CounterSeek  Counter = "seek"
)

// Aggregate is the fold over one user's history events consumed by the
// stats aggregator.
type Aggregate struct {
	TotalEpisodes     int
	CompletedEpisodes int
	TotalWatchSeconds int
	TotalPauses       int
	TotalSeeks        int
	AverageProgress   float64
}

// Repository defines persistence operations for watch history.
type Repository interface {
	Get(ctx context.Context, userID, titleID uuid.UUID, episodeID string) (Event, error)
	// Upsert inserts or updates the record keyed by (user, title, episode)
	// atomically. WatchedTimeSeconds never decreases; CompletedAt latches.
	Upsert(ctx context.Context, ev Event) (Event, error)
	// Increment bumps the pause or seek counter by exactly one and leaves
	// every other field untouched.
	Increment(ctx context.Context, userID, titleID uuid.UUID, episodeID string, c Counter) (Event, error)
	// ListByUser returns events ordered by last_watched_at descending.
	ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Event, error)
	// ContinueWatching returns unfinished events (progress 5-90 exclusive).
	ContinueWatching(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error)
	AggregateByUser(ctx context.Context, userID uuid.UUID) (Aggregate, error)
	// DistinctTitleIDs lists every title the user has history events for.
	DistinctTitleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// Clear removes the user's events, optionally scoped to one title.
	Clear(ctx context.Context, userID uuid.UUID, titleID *uuid.UUID) (int64, error)
	// DeleteOlderThan enforces the retention window; returns rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
