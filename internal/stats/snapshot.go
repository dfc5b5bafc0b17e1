// Package stats folds a user's watch progress, history and social data
// into one snapshot consumed by achievements and profile views.
package stats

// Snapshot is the explicit, fixed-shape statistics record for one user.
// Achievement criteria address it through Field, never through reflection.
type Snapshot struct {
	// Watch-progress fold.
	Watching      int     `json:"watching"`
	Completed     int     `json:"completed"`
	OnHold        int     `json:"on_hold"`
	Dropped       int     `json:"dropped"`
	PlanToWatch   int     `json:"plan_to_watch"`
	TotalEntries  int     `json:"total_entries"`
	TotalEpisodes int     `json:"total_episodes"`
	TotalMinutes  int     `json:"total_minutes"`
	AverageRating float64 `json:"average_rating"`
	RatedCount    int     `json:"rated_count"`

	// Watch-history fold.
	EpisodesCompleted int     `json:"episodes_completed"`
	TotalWatchSeconds int     `json:"total_watch_seconds"`
	AverageProgress   float64 `json:"average_progress"`

	// Diversity and social.
	UniqueGenres   int `json:"unique_genres"`
	FavoritesCount int `json:"favorites_count"`
	FriendsCount   int `json:"friends_count"`
	CommentsCount  int `json:"comments_count"`
}

// Field resolves a criteria field name to its snapshot value. Unknown
// names report false; the evaluator skips those criteria.
func (s Snapshot) Field(name string) (float64, bool) {
	switch name {
	case "watching":
		return float64(s.Watching), true
	case "completed", "totalWatched":
		return float64(s.Completed), true
	case "onHold":
		return float64(s.OnHold), true
	case "dropped":
		return float64(s.Dropped), true
	case "planToWatch":
		return float64(s.PlanToWatch), true
	case "totalEntries":
		return float64(s.TotalEntries), true
	case "totalEpisodes":
		return float64(s.TotalEpisodes), true
	case "totalMinutes":
		return float64(s.TotalMinutes), true
	case "averageRating":
		return s.AverageRating, true
	case "episodesCompleted":
		return float64(s.EpisodesCompleted), true
	case "uniqueGenres":
		return float64(s.UniqueGenres), true
	case "favorites":
		return float64(s.FavoritesCount), true
	case "friends":
		return float64(s.FriendsCount), true
	case "comments":
		return float64(s.CommentsCount), true
	}
	return 0, false
}
