// Package progress owns per-user, per-title viewing state and the rules
// that derive status transitions from raw progress updates.
package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the watch-list state of one title for one user.
type Status string

const (
	StatusWatching    Status = "watching"
	StatusCompleted   Status = "completed"
	StatusPlanToWatch Status = "planToWatch"
	StatusDropped     Status = "dropped"
	StatusOnHold      Status = "onHold"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWatching, StatusCompleted, StatusPlanToWatch, StatusDropped, StatusOnHold:
		return true
	}
	return false
}

// Entry is a user's overall progress record for one title.
// Identity is the unique pair (UserID, TitleID).
type Entry struct {
	UserID             uuid.UUID  `json:"user_id"`
	TitleID            uuid.UUID  `json:"title_id"`
	Status             Status     `json:"status"`
	EpisodesWatched    int        `json:"episodes_watched"`
	CurrentEpisode     int        `json:"current_episode"`
	TimeWatchedMinutes int        `json:"time_watched_minutes"`
	Rating             *int       `json:"rating,omitempty"` // 1-10, nil when unrated
	StartDate          *time.Time `json:"start_date,omitempty"`
	FinishDate         *time.Time `json:"finish_date,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	Priority           string     `json:"priority,omitempty"`
	RewatchCount       int        `json:"rewatch_count"`
	Tags               []string   `json:"tags,omitempty"`
	IsPrivate          bool       `json:"is_private"`
	LastWatched        time.Time  `json:"last_watched"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Update carries the optional fields of a progress report. Nil means
// "leave unchanged".
type Update struct {
	Status             *Status
	EpisodesWatched    *int
	CurrentEpisode     *int
	TimeWatchedMinutes *int
	Rating             *int
	Notes              *string
	Priority           *string
	Tags               *[]string
	IsPrivate          *bool
}

// ListFilter narrows ListByUser results. Limit 0 applies the default
// page size; a negative Limit returns everything.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Aggregate is the fold over one user's entries consumed by the stats
// aggregator.
type Aggregate struct {
	Watching      int
	Completed     int
	OnHold        int
	Dropped       int
	PlanToWatch   int
	TotalEntries  int
	TotalEpisodes int
	TotalMinutes  int
	RatedCount    int
	AverageRating float64
}

// Repository defines persistence operations for watch progress.
type Repository interface {
	Get(ctx context.Context, userID, titleID uuid.UUID) (Entry, error)
	// Upsert inserts or updates the entry keyed by (user, title) atomically.
	// EpisodesWatched, CurrentEpisode and TimeWatchedMinutes never decrease;
	// StartDate and FinishDate latch on first non-nil write. Concurrent
	// first-time inserts converge on the unique index instead of erroring.
	Upsert(ctx context.Context, e Entry) (Entry, error)
	// ListByUser returns entries ordered by last_watched descending.
	ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Entry, error)
	// AggregateByUser folds the user's entries into summary numbers.
	AggregateByUser(ctx context.Context, userID uuid.UUID) (Aggregate, error)
	Delete(ctx context.Context, userID, titleID uuid.UUID) error
}
