// Package handlers is the HTTP surface of the tracker: thin chi handlers
// that parse requests, call the domain services and map errors onto the
// shared JSON envelope.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/api"
	"github.com/example/anime-tracker/internal/platform/auth"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads up to maxRequestBodyBytes from r.Body and decodes JSON
// into dst. On failure it writes a 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

// requireUserID pulls the authenticated user id out of the context. On
// failure it writes a 401 response and returns false.
func requireUserID(w http.ResponseWriter, r *http.Request, rid string) (uuid.UUID, bool) {
	raw, ok := auth.UserIDFromContext(r.Context())
	if !ok || raw == "" {
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		api.Unauthorized(w, "UNAUTHORIZED", "invalid subject", rid)
		return uuid.Nil, false
	}
	return id, true
}

// pathUUID parses a uuid URL parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, rid, param string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		api.BadRequest(w, "INVALID_ID", param+" must be a uuid", rid, nil)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// queryBool parses an optional boolean query parameter; nil means absent.
func queryBool(r *http.Request, name string) *bool {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}
