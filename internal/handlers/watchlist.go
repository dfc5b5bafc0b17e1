package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/platform/api"
	"github.com/example/anime-tracker/internal/platform/httpserver"
	"github.com/example/anime-tracker/internal/progress"
)

type upsertProgressRequest struct {
	Status             *string   `json:"status,omitempty"`
	EpisodesWatched    *int      `json:"episodes_watched,omitempty"`
	CurrentEpisode     *int      `json:"current_episode,omitempty"`
	TimeWatchedMinutes *int      `json:"time_watched_minutes,omitempty"`
	Rating             *int      `json:"rating,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	Priority           *string   `json:"priority,omitempty"`
	Tags               *[]string `json:"tags,omitempty"`
	IsPrivate          *bool     `json:"is_private,omitempty"`
}

type progressResponse struct {
	Entry         progress.Entry `json:"entry"`
	AutoCompleted bool           `json:"auto_completed"`
}

// UpsertWatchProgress handles PUT /v1/watchlist/{title_id}
func UpsertWatchProgress(t *progress.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		titleID, ok := pathUUID(w, r, rid, "title_id")
		if !ok {
			return
		}
		var req upsertProgressRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		upd := progress.Update{
			EpisodesWatched:    req.EpisodesWatched,
			CurrentEpisode:     req.CurrentEpisode,
			TimeWatchedMinutes: req.TimeWatchedMinutes,
			Rating:             req.Rating,
			Notes:              req.Notes,
			Priority:           req.Priority,
			Tags:               req.Tags,
			IsPrivate:          req.IsPrivate,
		}
		if req.Status != nil {
			st := progress.Status(strings.TrimSpace(*req.Status))
			upd.Status = &st
		}

		res, err := t.UpsertProgress(r.Context(), userID, titleID, upd)
		if err != nil {
			log.Warn("watchlist upsert failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, progressResponse{Entry: res.Entry, AutoCompleted: res.AutoCompleted})
	}
}

// ListWatchList handles GET /v1/watchlist
func ListWatchList(t *progress.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}

		f := progress.ListFilter{
			Limit:  queryInt(r, "limit", 0),
			Offset: queryInt(r, "offset", 0),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			st := progress.Status(raw)
			if !st.Valid() {
				api.BadRequest(w, "INVALID_STATUS", "unknown status "+raw, rid, nil)
				return
			}
			f.Status = &st
		}

		entries, err := t.List(r.Context(), userID, f)
		if err != nil {
			log.Warn("watchlist list failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

// RemoveWatchProgress handles DELETE /v1/watchlist/{title_id}
func RemoveWatchProgress(t *progress.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		titleID, ok := pathUUID(w, r, rid, "title_id")
		if !ok {
			return
		}
		if err := t.Remove(r.Context(), userID, titleID); err != nil {
			log.Warn("watchlist remove failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.NoContent(w)
	}
}

type rateTitleRequest struct {
	Rating int `json:"rating"`
}

// RateTitle handles PUT /v1/watchlist/{title_id}/rating
func RateTitle(t *progress.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		titleID, ok := pathUUID(w, r, rid, "title_id")
		if !ok {
			return
		}
		var req rateTitleRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		res, err := t.SetRating(r.Context(), userID, titleID, req.Rating)
		if err != nil {
			log.Warn("rating failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, progressResponse{Entry: res.Entry, AutoCompleted: res.AutoCompleted})
	}
}
