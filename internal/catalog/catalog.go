// Package catalog owns the local title catalog and its upstream fallback.
// The tracker core consults it to validate progress updates and to decide
// auto-completion.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Title is the internal catalog representation of an anime title.
type Title struct {
	ID              uuid.UUID  `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	AltName         string     `json:"alt_name,omitempty"`
	Synopsis        string     `json:"synopsis,omitempty"`
	Type            string     `json:"type,omitempty"`
	TotalEpisodes   int        `json:"total_episodes"`
	EpisodeDuration int        `json:"episode_duration,omitempty"` // minutes per episode, 0 when unknown
	Genres          []string   `json:"genres,omitempty"`
	Year            int        `json:"year,omitempty"`
	Season          string     `json:"season,omitempty"`
	Poster          string     `json:"poster,omitempty"`
	Score           float32    `json:"score,omitempty"`
	Stats           TitleStats `json:"stats"`
	IsActive        bool       `json:"is_active"`
	Approved        bool       `json:"approved"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TitleStats is the per-title aggregate over all users' watch progress.
// It is recomputed from scratch, never incremented, so lost updates
// self-heal on the next recompute.
type TitleStats struct {
	Watching    int `json:"watching"`
	Completed   int `json:"completed"`
	OnHold      int `json:"on_hold"`
	Dropped     int `json:"dropped"`
	PlanToWatch int `json:"plan_to_watch"`
	TotalViews  int `json:"total_views"`
}

// Watchable reports whether progress may be tracked against the title.
func (t Title) Watchable() bool {
	return t.IsActive && t.Approved
}

// Store defines persistence operations for the local catalog.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Title, error)
	GetBySlug(ctx context.Context, slug string) (Title, error)
	// Upsert inserts or refreshes a title keyed by slug and returns the stored row.
	Upsert(ctx context.Context, t Title) (Title, error)
	List(ctx context.Context, limit, offset int) ([]Title, error)
	// RecomputeStats re-aggregates watch-progress counts for one title.
	RecomputeStats(ctx context.Context, id uuid.UUID) error
}

// Provider resolves titles for the tracker core: local catalog first,
// upstream fallback behind a bounded timeout.
type Provider interface {
	GetTitle(ctx context.Context, id uuid.UUID) (Title, error)
}
