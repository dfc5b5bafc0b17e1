package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/achievements"
	"github.com/example/anime-tracker/internal/platform/api"
	"github.com/example/anime-tracker/internal/platform/httpserver"
	"github.com/example/anime-tracker/internal/stats"
)

// CheckAchievements handles POST /v1/achievements/check: recomputes the
// user's snapshot and runs one evaluation pass, returning new unlocks.
func CheckAchievements(agg *stats.Aggregator, ev *achievements.Evaluator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		snap, err := agg.ComputeUserStats(r.Context(), userID)
		if err != nil {
			log.Warn("achievement check: stats failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		unlocked, err := ev.Evaluate(r.Context(), userID, snap)
		if err != nil {
			log.Warn("achievement check failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		if unlocked == nil {
			unlocked = []achievements.Unlock{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"unlocked": unlocked})
	}
}

// ListUserAchievements handles GET /v1/achievements with category,
// completed and displayed filters.
func ListUserAchievements(svc *achievements.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		f := achievements.LedgerFilter{
			Category:  strings.TrimSpace(r.URL.Query().Get("category")),
			Completed: queryBool(r, "completed"),
			Displayed: queryBool(r, "displayed"),
		}
		out, err := svc.GetForUser(r.Context(), userID, f)
		if err != nil {
			log.Warn("achievement list failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"achievements": out})
	}
}

// ListAchievementCatalog handles GET /v1/achievements/catalog: the global
// definition list with category and rarity filters. Secret achievements
// stay hidden until earned.
func ListAchievementCatalog(svc *achievements.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		defs, err := svc.ListDefinitions(r.Context(), achievements.DefinitionFilter{
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
			Rarity:   strings.TrimSpace(r.URL.Query().Get("rarity")),
		})
		if err != nil {
			log.Warn("achievement catalog failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"achievements": defs})
	}
}

// AchievementProgressByCategory handles GET /v1/achievements/progress
func AchievementProgressByCategory(svc *achievements.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		out, err := svc.ProgressByCategory(r.Context(), userID)
		if err != nil {
			log.Warn("achievement progress failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"categories": out})
	}
}

// RecentUnlocks handles GET /v1/achievements/recent
func RecentUnlocks(svc *achievements.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		out, err := svc.RecentUnlocks(r.Context(), userID, queryInt(r, "limit", 0))
		if err != nil {
			log.Warn("recent unlocks failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"achievements": out})
	}
}

// AchievementLeaderboard handles GET /v1/achievements/leaderboard
func AchievementLeaderboard(svc *achievements.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		rows, err := svc.Leaderboard(r.Context(),
			strings.TrimSpace(r.URL.Query().Get("category")),
			queryInt(r, "limit", 0))
		if err != nil {
			log.Warn("leaderboard failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"leaderboard": rows})
	}
}

type visibilityRequest struct {
	Displayed bool `json:"displayed"`
}

// SetAchievementVisibility handles
// PATCH /v1/achievements/{achievement_id}/visibility
func SetAchievementVisibility(svc *achievements.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		achievementID, ok := pathUUID(w, r, rid, "achievement_id")
		if !ok {
			return
		}
		var req visibilityRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		entry, err := svc.SetDisplayed(r.Context(), userID, achievementID, req.Displayed)
		if err != nil {
			log.Warn("visibility update failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, entry)
	}
}

type createAchievementRequest struct {
	Name        string                `json:"name"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Icon        string                `json:"icon"`
	Category    string                `json:"category"`
	Rarity      string                `json:"rarity"`
	Criteria    achievements.Criteria `json:"criteria"`
	Rewards     achievements.Rewards  `json:"rewards"`
	IsSecret    bool                  `json:"is_secret"`
}

// CreateAchievement handles POST /v1/admin/achievements (admin only).
func CreateAchievement(svc *achievements.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req createAchievementRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		created, err := svc.CreateDefinition(r.Context(), achievements.Definition{
			Name:        strings.TrimSpace(req.Name),
			Title:       req.Title,
			Description: req.Description,
			Icon:        req.Icon,
			Category:    req.Category,
			Rarity:      req.Rarity,
			Criteria:    req.Criteria,
			Rewards:     req.Rewards,
			IsActive:    true,
			IsSecret:    req.IsSecret,
		})
		if err != nil {
			log.Warn("achievement create failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.Created(w, created)
	}
}
