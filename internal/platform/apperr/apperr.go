// Package apperr holds the shared error taxonomy for the tracker core.
// Domain packages wrap these sentinels; the HTTP layer maps them onto
// the JSON error envelope with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Always returned to the caller,
	// never swallowed; no partial mutation is applied.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing referenced entity (title, user, ledger entry).
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate-key violation on a unique pair.
	// Stores normally absorb this by falling back to the update path.
	ErrConflict = errors.New("already exists")

	// ErrUpstream marks a third-party collaborator timeout or failure.
	// Safe to retry.
	ErrUpstream = errors.New("upstream unavailable")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Upstreamf wraps ErrUpstream with a formatted reason.
func Upstreamf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUpstream}, args...)...)
}
