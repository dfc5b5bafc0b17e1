package history

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/platform/apperr"
)

// ─── fixtures ────────────────────────────────────────────────────────────────

type stubTitles struct {
	titles map[uuid.UUID]catalog.Title
}

func (s stubTitles) GetTitle(_ context.Context, id uuid.UUID) (catalog.Title, error) {
	t, ok := s.titles[id]
	if !ok {
		return catalog.Title{}, apperr.NotFoundf("title %s not found", id)
	}
	return t, nil
}

func newTestService() (*Service, uuid.UUID, uuid.UUID) {
	title := catalog.Title{
		ID:       uuid.New(),
		Slug:     "test-title",
		Name:     "Test Title",
		IsActive: true,
		Approved: true,
	}
	svc := &Service{
		Repo:   NewMemoryRepository(),
		Titles: stubTitles{titles: map[uuid.UUID]catalog.Title{title.ID: title}},
		Log:    zap.NewNop(),
	}
	return svc, uuid.New(), title.ID
}

// ─── RecordEpisodeEvent ──────────────────────────────────────────────────────

func TestRecordEpisode_ProgressPercent(t *testing.T) {
	svc, userID, titleID := newTestService()

	ev, err := svc.RecordEpisodeEvent(context.Background(), userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 300,
		TotalTimeSeconds:   1400,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ev.ProgressPercent != 21 {
		t.Fatalf("expected 21%%, got %d%%", ev.ProgressPercent)
	}
	if ev.Status != StatusStarted {
		t.Fatalf("expected started, got %s", ev.Status)
	}
}

func TestRecordEpisode_IdempotentAndMonotonic(t *testing.T) {
	svc, userID, titleID := newTestService()
	ctx := context.Background()

	first, err := svc.RecordEpisodeEvent(ctx, userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 300,
		TotalTimeSeconds:   1400,
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}

	// A stale heartbeat with less watched time must not regress the record.
	second, err := svc.RecordEpisodeEvent(ctx, userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 200,
		TotalTimeSeconds:   1400,
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.WatchedTimeSeconds != first.WatchedTimeSeconds {
		t.Fatalf("expected watched time to stay at %d, got %d",
			first.WatchedTimeSeconds, second.WatchedTimeSeconds)
	}
	if second.ProgressPercent != 21 {
		t.Fatalf("expected 21%%, got %d%%", second.ProgressPercent)
	}
}

func TestRecordEpisode_CorrectedDurationLowersPercent(t *testing.T) {
	svc, userID, titleID := newTestService()
	ctx := context.Background()

	first, err := svc.RecordEpisodeEvent(ctx, userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 700,
		TotalTimeSeconds:   1400,
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if first.ProgressPercent != 50 {
		t.Fatalf("expected 50%%, got %d%%", first.ProgressPercent)
	}

	// The player re-reports the episode with its true, longer duration.
	// Watched time stays clamped but the percent must drop to match.
	second, err := svc.RecordEpisodeEvent(ctx, userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 700,
		TotalTimeSeconds:   2800,
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.WatchedTimeSeconds != 700 {
		t.Fatalf("expected watched time 700, got %d", second.WatchedTimeSeconds)
	}
	if second.ProgressPercent != 25 {
		t.Fatalf("expected 25%% after duration correction, got %d%%", second.ProgressPercent)
	}
}

func TestRecordEpisode_NinetyPercentCompletes(t *testing.T) {
	svc, userID, titleID := newTestService()
	ctx := context.Background()

	ev, err := svc.RecordEpisodeEvent(ctx, userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 1300,
		TotalTimeSeconds:   1400,
		Status:             StatusWatching,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ev.Status != StatusCompleted {
		t.Fatalf("expected auto-completion at >=90%%, got %s", ev.Status)
	}
	if ev.CompletedAt == nil {
		t.Fatal("expected completed_at to be stamped")
	}

	// Replay keeps the original completion timestamp.
	again, err := svc.RecordEpisodeEvent(ctx, userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 1350,
		TotalTimeSeconds:   1400,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.CompletedAt == nil || !again.CompletedAt.Equal(*ev.CompletedAt) {
		t.Fatal("expected completed_at to stay latched")
	}
}

func TestRecordEpisode_Validation(t *testing.T) {
	svc, userID, titleID := newTestService()
	ctx := context.Background()

	cases := []struct {
		name      string
		episodeID string
		in        EpisodeEvent
	}{
		{"missing episode id", "", EpisodeEvent{EpisodeNumber: 1, TotalTimeSeconds: 1400}},
		{"zero total time", "ep-1", EpisodeEvent{EpisodeNumber: 1}},
		{"negative watched", "ep-1", EpisodeEvent{EpisodeNumber: 1, WatchedTimeSeconds: -1, TotalTimeSeconds: 1400}},
		{"bad status", "ep-1", EpisodeEvent{EpisodeNumber: 1, TotalTimeSeconds: 1400, Status: EventStatus("rewinding")}},
		{"zero episode number", "ep-1", EpisodeEvent{TotalTimeSeconds: 1400}},
	}
	for _, tc := range cases {
		if _, err := svc.RecordEpisodeEvent(ctx, userID, titleID, tc.episodeID, tc.in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

// ─── counters ────────────────────────────────────────────────────────────────

func TestPauseAndSeekCounters(t *testing.T) {
	svc, userID, titleID := newTestService()
	ctx := context.Background()

	if _, err := svc.RecordEpisodeEvent(ctx, userID, titleID, "ep-1", EpisodeEvent{
		EpisodeNumber:      1,
		WatchedTimeSeconds: 100,
		TotalTimeSeconds:   1400,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if _, err := svc.RegisterPause(ctx, userID, titleID, "ep-1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	ev, err := svc.RegisterPause(ctx, userID, titleID, "ep-1")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if ev.PauseCount != 2 {
		t.Fatalf("expected 2 pauses, got %d", ev.PauseCount)
	}

	ev, err = svc.RegisterSeek(ctx, userID, titleID, "ep-1")
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	if ev.SeekCount != 1 {
		t.Fatalf("expected 1 seek, got %d", ev.SeekCount)
	}
	if ev.WatchedTimeSeconds != 100 {
		t.Fatalf("expected counters to leave watched time alone, got %d", ev.WatchedTimeSeconds)
	}
}

func TestRegisterPause_MissingRecord(t *testing.T) {
	svc, userID, titleID := newTestService()

	if _, err := svc.RegisterPause(context.Background(), userID, titleID, "ep-404"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// ─── views ───────────────────────────────────────────────────────────────────

func TestContinueWatchingWindow(t *testing.T) {
	svc, userID, titleID := newTestService()
	ctx := context.Background()

	// 3%: below the window. 50%: inside. 95%: finished, outside.
	seed := []struct {
		episodeID string
		watched   int
	}{
		{"ep-low", 42}, {"ep-mid", 700}, {"ep-done", 1330},
	}
	for _, s := range seed {
		if _, err := svc.RecordEpisodeEvent(ctx, userID, titleID, s.episodeID, EpisodeEvent{
			EpisodeNumber:      1,
			WatchedTimeSeconds: s.watched,
			TotalTimeSeconds:   1400,
		}); err != nil {
			t.Fatalf("seed %s: %v", s.episodeID, err)
		}
	}

	events, err := svc.ContinueWatching(ctx, userID, 10)
	if err != nil {
		t.Fatalf("continue watching: %v", err)
	}
	if len(events) != 1 || events[0].EpisodeID != "ep-mid" {
		t.Fatalf("expected only ep-mid in the window, got %d events", len(events))
	}
}

func TestClearHistory(t *testing.T) {
	svc, userID, titleID := newTestService()
	ctx := context.Background()

	for _, ep := range []string{"ep-1", "ep-2"} {
		if _, err := svc.RecordEpisodeEvent(ctx, userID, titleID, ep, EpisodeEvent{
			EpisodeNumber:      1,
			WatchedTimeSeconds: 100,
			TotalTimeSeconds:   1400,
		}); err != nil {
			t.Fatalf("seed %s: %v", ep, err)
		}
	}

	n, err := svc.Clear(ctx, userID, nil)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	events, err := svc.List(ctx, userID, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty history, got %d", len(events))
	}
}
