package catalog

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

// Upstream is the slice of the AniLiberty client the provider needs.
type Upstream interface {
	GetRelease(ctx context.Context, id int64) (Title, error)
}

// staleAfter is how old a local row may get before a refresh is attempted.
const staleAfter = 24 * time.Hour

// CachedProvider resolves titles local-first with a short-lived in-memory
// cache in front of the store. Upstream refreshes are best-effort: a stale
// local row is always preferred over a failed upstream call.
type CachedProvider struct {
	Store    Store
	Upstream Upstream // nil disables upstream refresh
	Log      *zap.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	title     Title
	expiresAt time.Time
}

func NewCachedProvider(store Store, upstream Upstream, ttl time.Duration, log *zap.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{
		Store:    store,
		Upstream: upstream,
		Log:      log,
		cache:    make(map[uuid.UUID]cacheEntry),
		ttl:      ttl,
	}
}

// GetTitle implements Provider.
func (p *CachedProvider) GetTitle(ctx context.Context, id uuid.UUID) (Title, error) {
	if t, ok := p.cached(id); ok {
		return t, nil
	}

	t, err := p.Store.Get(ctx, id)
	if err != nil {
		return Title{}, err
	}

	if p.Upstream != nil && time.Since(t.UpdatedAt) > staleAfter {
		if fresh, err := p.refresh(ctx, t); err == nil {
			t = fresh
		} else {
			// Stale local data beats a failed upstream call.
			p.Log.Warn("catalog: upstream refresh failed",
				zap.String("title_id", id.String()), zap.Error(err))
		}
	}

	p.put(id, t)
	return t, nil
}

// refresh pulls the upstream release referenced by the title's slug and
// writes it back through the store.
func (p *CachedProvider) refresh(ctx context.Context, t Title) (Title, error) {
	relID, ok := upstreamID(t.Slug)
	if !ok {
		return Title{}, apperr.Upstreamf("no upstream mapping for slug %q", t.Slug)
	}
	fresh, err := p.Upstream.GetRelease(ctx, relID)
	if err != nil {
		return Title{}, apperr.Upstreamf("aniliberty release %d: %v", relID, err)
	}
	fresh.ID = t.ID
	fresh.Slug = t.Slug
	return p.Store.Upsert(ctx, fresh)
}

func (p *CachedProvider) cached(id uuid.UUID) (Title, bool) {
	p.mu.RLock()
	e, ok := p.cache[id]
	p.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return Title{}, false
	}
	return e.title, true
}

func (p *CachedProvider) put(id uuid.UUID, t Title) {
	p.mu.Lock()
	p.cache[id] = cacheEntry{title: t, expiresAt: time.Now().Add(p.ttl)}
	p.mu.Unlock()
}

// Invalidate drops one title from the in-memory cache.
func (p *CachedProvider) Invalidate(id uuid.UUID) {
	p.mu.Lock()
	delete(p.cache, id)
	p.mu.Unlock()
}

// upstreamID extracts the AniLiberty release id from slugs of the form
// "aniliberty-<n>".
func upstreamID(slug string) (int64, bool) {
	rest, ok := strings.CutPrefix(slug, "aniliberty-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
