package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/platform/api"
	"github.com/example/anime-tracker/internal/platform/httpserver"
	"github.com/example/anime-tracker/internal/stats"
)

// GetUserStats handles GET /v1/stats
func GetUserStats(a *stats.Aggregator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		snap, err := a.ComputeUserStats(r.Context(), userID)
		if err != nil {
			log.Warn("stats compute failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, snap)
	}
}

// GetTopGenres handles GET /v1/stats/genres
func GetTopGenres(a *stats.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		genres := a.ComputeTopGenres(r.Context(), userID, queryInt(r, "limit", 5))
		api.WriteJSON(w, http.StatusOK, map[string]any{"genres": genres})
	}
}
