package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/history"
	"github.com/example/anime-tracker/internal/platform/api"
	"github.com/example/anime-tracker/internal/platform/httpserver"
)

type recordEpisodeRequest struct {
	EpisodeNumber      int    `json:"episode_number"`
	EpisodeTitle       string `json:"episode_title,omitempty"`
	WatchedTimeSeconds int    `json:"watched_time_seconds"`
	TotalTimeSeconds   int    `json:"total_time_seconds"`
	Status             string `json:"status,omitempty"`
	Quality            string `json:"quality,omitempty"`
	AudioLanguage      string `json:"audio_language,omitempty"`
	SubtitleLanguage   string `json:"subtitle_language,omitempty"`
	Device             string `json:"device,omitempty"`
}

// RecordEpisode handles POST /v1/history/{title_id}/{episode_id}
func RecordEpisode(s *history.Service, log *zap.Logger) http.HandlerFunc {
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
		episodeID := strings.TrimSpace(chi.URLParam(r, "episode_id"))
		var req recordEpisodeRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		ev, err := s.RecordEpisodeEvent(r.Context(), userID, titleID, episodeID, history.EpisodeEvent{
			EpisodeNumber:      req.EpisodeNumber,
			EpisodeTitle:       req.EpisodeTitle,
			WatchedTimeSeconds: req.WatchedTimeSeconds,
			TotalTimeSeconds:   req.TotalTimeSeconds,
			Status:             history.EventStatus(req.Status),
			Quality:            req.Quality,
			AudioLanguage:      req.AudioLanguage,
			SubtitleLanguage:   req.SubtitleLanguage,
			Device:             req.Device,
		})
		if err != nil {
			log.Warn("history record failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, ev)
	}
}

// RegisterPause handles POST /v1/history/{title_id}/{episode_id}/pause
func RegisterPause(s *history.Service, log *zap.Logger) http.HandlerFunc {
	return counterHandler(s.RegisterPause, "pause", log)
}

// RegisterSeek handles POST /v1/history/{title_id}/{episode_id}/seek
func RegisterSeek(s *history.Service, log *zap.Logger) http.HandlerFunc {
	return counterHandler(s.RegisterSeek, "seek", log)
}

func counterHandler(fn func(ctx context.Context, userID, titleID uuid.UUID, episodeID string) (history.Event, error), what string, log *zap.Logger) http.HandlerFunc {
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
		episodeID := strings.TrimSpace(chi.URLParam(r, "episode_id"))
		ev, err := fn(r.Context(), userID, titleID, episodeID)
		if err != nil {
			log.Warn("history "+what+" failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, ev)
	}
}

// ListHistory handles GET /v1/history
func ListHistory(s *history.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}

		f := history.ListFilter{
			Limit:  queryInt(r, "limit", 0),
			Offset: queryInt(r, "offset", 0),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("title_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				api.BadRequest(w, "INVALID_ID", "title_id must be a uuid", rid, nil)
				return
			}
			f.TitleID = &id
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			st := history.EventStatus(raw)
			if !st.Valid() {
				api.BadRequest(w, "INVALID_STATUS", "unknown status "+raw, rid, nil)
				return
			}
			f.Status = &st
		}
		for name, dst := range map[string]**time.Time{"from": &f.DateFrom, "to": &f.DateTo} {
			raw := strings.TrimSpace(r.URL.Query().Get(name))
			if raw == "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				api.BadRequest(w, "INVALID_DATE", name+" must be RFC 3339", rid, nil)
				return
			}
			*dst = &ts
		}

		events, err := s.List(r.Context(), userID, f)
		if err != nil {
			log.Warn("history list failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

// ContinueWatching handles GET /v1/history/continue
func ContinueWatching(s *history.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		events, err := s.ContinueWatching(r.Context(), userID, queryInt(r, "limit", 0))
		if err != nil {
			log.Warn("continue watching failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

// RecentHistory handles GET /v1/history/recent
func RecentHistory(s *history.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		events, err := s.RecentlyWatched(r.Context(), userID, queryInt(r, "limit", 0))
		if err != nil {
			log.Warn("recent history failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

// ClearHistory handles DELETE /v1/history with an optional title_id query.
func ClearHistory(s *history.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireUserID(w, r, rid)
		if !ok {
			return
		}
		var titleID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("title_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				api.BadRequest(w, "INVALID_ID", "title_id must be a uuid", rid, nil)
				return
			}
			titleID = &id
		}
		n, err := s.Clear(r.Context(), userID, titleID)
		if err != nil {
			log.Warn("history clear failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}
