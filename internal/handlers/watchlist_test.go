package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/platform/auth"
	"github.com/example/anime-tracker/internal/progress"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// newTestTracker wires a tracker over in-memory stores with one
// watchable title seeded.
func newTestTracker(t *testing.T) (*progress.Tracker, catalog.Title) {
	t.Helper()
	store := catalog.NewMemoryStore()
	title, err := store.Upsert(context.Background(), catalog.Title{
		Slug:          "frieren",
		Name:          "Frieren",
		TotalEpisodes: 28,
		IsActive:      true,
		Approved:      true,
	})
	if err != nil {
		t.Fatalf("seed title: %v", err)
	}
	tracker := &progress.Tracker{
		Repo:   progress.NewMemoryRepository(),
		Titles: catalog.NewCachedProvider(store, nil, time.Minute, zap.NewNop()),
		Log:    zap.NewNop(),
	}
	return tracker, title
}

// watchlistReq builds a request with the title_id chi param set and an
// authenticated user in context.
func watchlistReq(method, url string, titleID uuid.UUID, userID string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("title_id", titleID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

// ─── UpsertWatchProgress ─────────────────────────────────────────────────────

func TestUpsertWatchProgress_OK(t *testing.T) {
	tracker, title := newTestTracker(t)
	userID := uuid.NewString()

	body, _ := json.Marshal(map[string]any{"status": "watching", "episodes_watched": 3})
	req := watchlistReq(http.MethodPut, "/v1/watchlist/"+title.ID.String(), title.ID, userID, body)
	rr := httptest.NewRecorder()
	UpsertWatchProgress(tracker, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp progressResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Entry.Status != progress.StatusWatching || resp.Entry.EpisodesWatched != 3 {
		t.Fatalf("unexpected entry: %+v", resp.Entry)
	}
	if resp.AutoCompleted {
		t.Fatal("expected no auto-completion")
	}
}

func TestUpsertWatchProgress_AutoCompleteFlag(t *testing.T) {
	tracker, title := newTestTracker(t)
	userID := uuid.NewString()

	body, _ := json.Marshal(map[string]any{"status": "watching", "episodes_watched": 28})
	req := watchlistReq(http.MethodPut, "/v1/watchlist/"+title.ID.String(), title.ID, userID, body)
	rr := httptest.NewRecorder()
	UpsertWatchProgress(tracker, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp progressResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.AutoCompleted || resp.Entry.Status != progress.StatusCompleted {
		t.Fatalf("expected auto-completed response, got %+v", resp)
	}
}

func TestUpsertWatchProgress_Unauthenticated(t *testing.T) {
	tracker, title := newTestTracker(t)

	req := watchlistReq(http.MethodPut, "/v1/watchlist/"+title.ID.String(), title.ID, "", []byte(`{}`))
	rr := httptest.NewRecorder()
	UpsertWatchProgress(tracker, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestUpsertWatchProgress_ValidationMapped(t *testing.T) {
	tracker, title := newTestTracker(t)
	userID := uuid.NewString()

	body, _ := json.Marshal(map[string]any{"rating": 42})
	req := watchlistReq(http.MethodPut, "/v1/watchlist/"+title.ID.String(), title.ID, userID, body)
	rr := httptest.NewRecorder()
	UpsertWatchProgress(tracker, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpsertWatchProgress_UnknownTitle(t *testing.T) {
	tracker, _ := newTestTracker(t)
	userID := uuid.NewString()
	missing := uuid.New()

	req := watchlistReq(http.MethodPut, "/v1/watchlist/"+missing.String(), missing, userID, []byte(`{}`))
	rr := httptest.NewRecorder()
	UpsertWatchProgress(tracker, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

// ─── ListWatchList ───────────────────────────────────────────────────────────

func TestListWatchList_StatusFilter(t *testing.T) {
	tracker, title := newTestTracker(t)
	userID := uuid.New()

	st := progress.StatusWatching
	if _, err := tracker.UpsertProgress(context.Background(), userID, title.ID, progress.Update{Status: &st}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := watchlistReq(http.MethodGet, "/v1/watchlist?status=watching", uuid.Nil, userID.String(), nil)
	rr := httptest.NewRecorder()
	ListWatchList(tracker, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Entries []progress.Entry `json:"entries"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp.Entries))
	}

	req = watchlistReq(http.MethodGet, "/v1/watchlist?status=bingeing", uuid.Nil, userID.String(), nil)
	rr = httptest.NewRecorder()
	ListWatchList(tracker, zap.NewNop()).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

// ─── RemoveWatchProgress ─────────────────────────────────────────────────────

func TestRemoveWatchProgress(t *testing.T) {
	tracker, title := newTestTracker(t)
	userID := uuid.New()

	st := progress.StatusWatching
	if _, err := tracker.UpsertProgress(context.Background(), userID, title.ID, progress.Update{Status: &st}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := watchlistReq(http.MethodDelete, "/v1/watchlist/"+title.ID.String(), title.ID, userID.String(), nil)
	rr := httptest.NewRecorder()
	RemoveWatchProgress(tracker, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	entries, err := tracker.List(context.Background(), userID, progress.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty list, got %d", len(entries))
	}
}
