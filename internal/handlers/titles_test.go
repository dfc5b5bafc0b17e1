package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
)

// fakeSource serves canned titles or a fixed error for both Search and
// Popular.
type fakeSource struct {
	titles []catalog.Title
	err    error
}

func (f fakeSource) Search(context.Context, string, int) ([]catalog.Title, error) {
	return f.titles, f.err
}

func (f fakeSource) Popular(context.Context, int) ([]catalog.Title, error) {
	return f.titles, f.err
}

// ─── SearchTitles ────────────────────────────────────────────────────────────

func TestSearchTitles_UpsertsResults(t *testing.T) {
	store := catalog.NewMemoryStore()
	src := fakeSource{titles: []catalog.Title{
		{Slug: "aniliberty-1", Name: "Frieren", TotalEpisodes: 28, IsActive: true, Approved: true},
		{Slug: "aniliberty-2", Name: "Mushoku Tensei", TotalEpisodes: 23, IsActive: true, Approved: true},
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/titles/search?q=frieren", nil)
	rr := httptest.NewRecorder()
	SearchTitles(src, store, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Titles []catalog.Title `json:"titles"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Titles) != 2 {
		t.Fatalf("expected 2 titles, got %d", len(resp.Titles))
	}
	for _, title := range resp.Titles {
		if title.ID.String() == "00000000-0000-0000-0000-000000000000" {
			t.Fatalf("title %q was not assigned an id by the store", title.Slug)
		}
		if _, err := store.GetBySlug(context.Background(), title.Slug); err != nil {
			t.Fatalf("title %q not upserted: %v", title.Slug, err)
		}
	}
}

func TestSearchTitles_MissingQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/titles/search", nil)
	rr := httptest.NewRecorder()
	SearchTitles(fakeSource{}, catalog.NewMemoryStore(), zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSearchTitles_UpstreamDown(t *testing.T) {
	src := fakeSource{err: errors.New("connection refused")}
	req := httptest.NewRequest(http.MethodGet, "/v1/titles/search?q=x", nil)
	rr := httptest.NewRecorder()
	SearchTitles(src, catalog.NewMemoryStore(), zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rr.Code, rr.Body.String())
	}
}

// ─── RefreshCatalog ──────────────────────────────────────────────────────────

func TestRefreshCatalog_ReportsCounts(t *testing.T) {
	store := catalog.NewMemoryStore()
	src := fakeSource{titles: []catalog.Title{
		{Slug: "aniliberty-3", Name: "Vinland Saga", TotalEpisodes: 24, IsActive: true, Approved: true},
	}}

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/catalog/refresh", nil)
	rr := httptest.NewRecorder()
	RefreshCatalog(src, store, zap.NewNop()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Fetched  int `json:"fetched"`
		Upserted int `json:"upserted"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Fetched != 1 || resp.Upserted != 1 {
		t.Fatalf("expected fetched=1 upserted=1, got %+v", resp)
	}
}
