package handlers

import (
	"errors"
	"net/http"

	"github.com/example/anime-tracker/internal/platform/api"
	"github.com/example/anime-tracker/internal/platform/apperr"
)

// writeDomainError maps domain sentinels onto the JSON envelope. Anything
// unrecognized is masked as a 500; callers log the original.
func writeDomainError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		api.BadRequest(w, "VALIDATION", err.Error(), rid, nil)
	case errors.Is(err, apperr.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", err.Error(), rid)
	case errors.Is(err, apperr.ErrConflict):
		api.Conflict(w, "CONFLICT", err.Error(), rid, nil)
	case errors.Is(err, apperr.ErrUpstream):
		api.WriteError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", err.Error(), rid, nil)
	default:
		api.Internal(w, rid)
	}
}
