package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/platform/api"
	"github.com/example/anime-tracker/internal/platform/apperr"
	"github.com/example/anime-tracker/internal/platform/httpserver"
)

// TitleSource is the slice of the upstream catalog the search and
// refresh handlers need.
type TitleSource interface {
	Search(ctx context.Context, q string, limit int) ([]catalog.Title, error)
	Popular(ctx context.Context, limit int) ([]catalog.Title, error)
}

// GetTitle handles GET /v1/titles/{title_id}, a read-through to the
// catalog provider.
func GetTitle(p catalog.Provider, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		titleID, ok := pathUUID(w, r, rid, "title_id")
		if !ok {
			return
		}
		t, err := p.GetTitle(r.Context(), titleID)
		if err != nil {
			log.Warn("title lookup failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, t)
	}
}

// ListTitles handles GET /v1/titles with limit/offset paging.
func ListTitles(store catalog.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		limit := queryInt(r, "limit", 20)
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		titles, err := store.List(r.Context(), limit, queryInt(r, "offset", 0))
		if err != nil {
			log.Warn("title list failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"titles": titles})
	}
}

// SearchTitles handles GET /v1/titles/search?q=. Results come from the
// upstream catalog and are upserted locally so follow-up progress calls
// resolve without another upstream round trip.
func SearchTitles(src TitleSource, store catalog.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			api.BadRequest(w, "INVALID_QUERY", "q is required", rid, nil)
			return
		}
		limit := queryInt(r, "limit", 20)
		if limit <= 0 || limit > 50 {
			limit = 20
		}
		found, err := src.Search(r.Context(), q, limit)
		if err != nil {
			log.Warn("title search failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, apperr.Upstreamf("search: %v", err))
			return
		}
		titles := make([]catalog.Title, 0, len(found))
		for _, t := range found {
			stored, err := store.Upsert(r.Context(), t)
			if err != nil {
				// Still return the upstream view when the local write fails.
				log.Warn("search upsert failed",
					zap.String("request_id", rid),
					zap.String("slug", t.Slug),
					zap.Error(err))
				stored = t
			}
			titles = append(titles, stored)
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"titles": titles})
	}
}

// RefreshCatalog handles POST /v1/admin/catalog/refresh. It pulls the
// upstream popularity feed and upserts every release, seeding the local
// catalog before users have touched it.
func RefreshCatalog(src TitleSource, store catalog.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		limit := queryInt(r, "limit", 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		titles, err := src.Popular(r.Context(), limit)
		if err != nil {
			log.Warn("catalog refresh failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, apperr.Upstreamf("popular: %v", err))
			return
		}
		upserted := 0
		for _, t := range titles {
			if _, err := store.Upsert(r.Context(), t); err != nil {
				log.Warn("catalog refresh upsert failed",
					zap.String("request_id", rid),
					zap.String("slug", t.Slug),
					zap.Error(err))
				continue
			}
			upserted++
		}
		log.Info("catalog refreshed", zap.String("request_id", rid), zap.Int("upserted", upserted))
		api.WriteJSON(w, http.StatusOK, map[string]any{"fetched": len(titles), "upserted": upserted})
	}
}

// GetTitleBySlug handles GET /v1/titles/slug/{slug}. Slug lookups hit the
// store directly; provider caching keys on id.
func GetTitleBySlug(store catalog.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			api.BadRequest(w, "INVALID_SLUG", "slug is required", rid, nil)
			return
		}
		t, err := store.GetBySlug(r.Context(), slug)
		if err != nil {
			log.Warn("title slug lookup failed", zap.String("request_id", rid), zap.Error(err))
			writeDomainError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, t)
	}
}
