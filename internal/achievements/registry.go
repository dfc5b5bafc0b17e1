package achievements

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/identity"
	"github.com/example/anime-tracker/internal/stats"
)

// Predicate decides whether a custom achievement holds for a user.
// Predicates must be deterministic for a given snapshot.
type Predicate func(ctx context.Context, userID uuid.UUID, snap stats.Snapshot) (bool, error)

// Registry maps custom achievement names to predicates. Definitions with
// criteria type "custom" dispatch here by name; a definition with no
// registered predicate is skipped during evaluation.
type Registry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

func NewRegistry() *Registry {
	return &Registry{preds: make(map[string]Predicate)}
}

func (r *Registry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preds[name] = p
}

func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preds[name]
	return p, ok
}

// RegisterBuiltins installs the predicates shipped with the service.
func RegisterBuiltins(r *Registry, users identity.Store) {
	// Account is at least a year old.
	r.Register("veteran", func(ctx context.Context, userID uuid.UUID, _ stats.Snapshot) (bool, error) {
		u, err := users.Get(ctx, userID)
		if err != nil {
			return false, err
		}
		return time.Since(u.CreatedAt) >= 365*24*time.Hour, nil
	})

	// Every entry in the library is rated.
	r.Register("critic", func(_ context.Context, _ uuid.UUID, snap stats.Snapshot) (bool, error) {
		return snap.TotalEntries > 0 && snap.RatedCount == snap.TotalEntries, nil
	})
}
