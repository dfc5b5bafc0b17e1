package achievements

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/stats"
)

// ─── fixtures ────────────────────────────────────────────────────────────────

func newTestEvaluator(t *testing.T, defs ...Definition) (*Evaluator, *MemoryDefinitionStore, *MemoryLedgerStore) {
	t.Helper()
	ds := NewMemoryDefinitionStore()
	ls := NewMemoryLedgerStore(ds)
	for _, d := range defs {
		if _, err := ds.Create(context.Background(), d); err != nil {
			t.Fatalf("seed definition %s: %v", d.Name, err)
		}
	}
	return &Evaluator{
		Definitions: ds,
		Ledger:      ls,
		Registry:    NewRegistry(),
		Log:         zap.NewNop(),
	}, ds, ls
}

func countDef(name string, target float64, field string, points int) Definition {
	return Definition{
		Name:     name,
		Title:    name,
		Category: "watching",
		Rarity:   "common",
		Criteria: Criteria{Type: CriteriaCount, Target: target, Field: field},
		Rewards:  Rewards{Points: points},
		IsActive: true,
	}
}

// ─── Evaluate ────────────────────────────────────────────────────────────────

func TestEvaluate_UnlocksOnce(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, countDef("first-five", 5, "totalEntries", 10))
	ctx := context.Background()
	userID := uuid.New()

	unlocked, err := ev.Evaluate(ctx, userID, stats.Snapshot{TotalEntries: 5})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Definition.Name != "first-five" {
		t.Fatalf("expected one unlock, got %d", len(unlocked))
	}
	if unlocked[0].Entry.UnlockedAt == nil {
		t.Fatal("expected unlocked_at to be stamped")
	}

	// A second pass over the same (or higher) snapshot emits nothing new.
	unlocked, err = ev.Evaluate(ctx, userID, stats.Snapshot{TotalEntries: 7})
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(unlocked) != 0 {
		t.Fatalf("expected no repeat unlocks, got %d", len(unlocked))
	}
}

func TestEvaluate_ConcurrentUnlocksExactlyOnce(t *testing.T) {
	ev, _, ls := newTestEvaluator(t, countDef("first-five", 5, "totalEntries", 10))
	ctx := context.Background()
	userID := uuid.New()

	// Racing evaluations of the same snapshot must agree on a single
	// unlock for the (user, achievement) pair.
	const passes = 8
	var wg sync.WaitGroup
	var total int64
	errs := make(chan error, passes)
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlocked, err := ev.Evaluate(ctx, userID, stats.Snapshot{TotalEntries: 5})
			if err != nil {
				errs <- err
				return
			}
			atomic.AddInt64(&total, int64(len(unlocked)))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent evaluate: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one unlock across all passes, got %d", total)
	}

	rows, err := ls.ListByUser(ctx, userID, LedgerFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(rows))
	}
}

func TestEvaluate_ProgressMonotonic(t *testing.T) {
	ev, ds, ls := newTestEvaluator(t, countDef("marathon", 100, "totalEpisodes", 50))
	ctx := context.Background()
	userID := uuid.New()

	if _, err := ev.Evaluate(ctx, userID, stats.Snapshot{TotalEpisodes: 40}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// A shrunken snapshot must not roll progress back.
	if _, err := ev.Evaluate(ctx, userID, stats.Snapshot{TotalEpisodes: 25}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	def, err := ds.GetByName(ctx, "marathon")
	if err != nil {
		t.Fatalf("get definition: %v", err)
	}
	entry, err := ls.Get(ctx, userID, def.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Progress.Current != 40 {
		t.Fatalf("expected progress to stay at 40, got %v", entry.Progress.Current)
	}
	if entry.Progress.Percentage != 40 {
		t.Fatalf("expected 40%%, got %d%%", entry.Progress.Percentage)
	}
	if entry.IsCompleted {
		t.Fatal("expected entry to stay incomplete")
	}
}

func TestEvaluate_CompletionLatches(t *testing.T) {
	ev, ds, ls := newTestEvaluator(t, countDef("ten-club", 10, "completed", 25))
	ctx := context.Background()
	userID := uuid.New()

	if _, err := ev.Evaluate(ctx, userID, stats.Snapshot{Completed: 12}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := ev.Evaluate(ctx, userID, stats.Snapshot{Completed: 3}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	def, _ := ds.GetByName(ctx, "ten-club")
	entry, err := ls.Get(ctx, userID, def.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.IsCompleted {
		t.Fatal("expected completion to latch")
	}
}

func TestEvaluate_RatingPartialCredit(t *testing.T) {
	def := Definition{
		Name:     "discerning",
		Title:    "Discerning",
		Category: "special",
		Rarity:   "rare",
		Criteria: Criteria{Type: CriteriaRating, Target: 8, Field: "averageRating"},
		Rewards:  Rewards{Points: 30},
		IsActive: true,
	}
	ev, ds, ls := newTestEvaluator(t, def)
	ctx := context.Background()
	userID := uuid.New()

	unlocked, err := ev.Evaluate(ctx, userID, stats.Snapshot{AverageRating: 6.5})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 0 {
		t.Fatal("expected no unlock below the bar")
	}
	created, _ := ds.GetByName(ctx, "discerning")
	entry, err := ls.Get(ctx, userID, created.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Progress.Current != 6.5 {
		t.Fatalf("expected partial credit 6.5, got %v", entry.Progress.Current)
	}
	if entry.Progress.Percentage != 81 {
		t.Fatalf("expected 81%%, got %d%%", entry.Progress.Percentage)
	}

	unlocked, err = ev.Evaluate(ctx, userID, stats.Snapshot{AverageRating: 8.2})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 1 {
		t.Fatalf("expected unlock at the bar, got %d", len(unlocked))
	}
	if unlocked[0].Entry.Progress.Current != 8 {
		t.Fatalf("expected current capped at target, got %v", unlocked[0].Entry.Progress.Current)
	}
}

func TestEvaluate_DiversityAndStreak(t *testing.T) {
	diversity := Definition{
		Name:     "explorer",
		Category: "exploration",
		Rarity:   "rare",
		Criteria: Criteria{Type: CriteriaDiversity, Target: 5, Field: "uniqueGenres"},
		Rewards:  Rewards{Points: 20},
		IsActive: true,
	}
	streak := Definition{
		Name:     "regular",
		Category: "time",
		Rarity:   "common",
		Criteria: Criteria{Type: CriteriaStreak, Target: 7, Field: "totalEntries"},
		Rewards:  Rewards{Points: 15},
		IsActive: true,
	}
	ev, _, _ := newTestEvaluator(t, diversity, streak)

	unlocked, err := ev.Evaluate(context.Background(), uuid.New(), stats.Snapshot{
		UniqueGenres: 6,
		TotalEntries: 9,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 2 {
		t.Fatalf("expected both unlocks, got %d", len(unlocked))
	}
}

func TestEvaluate_UnknownFieldSkipped(t *testing.T) {
	ev, ds, ls := newTestEvaluator(t, countDef("mystery", 5, "noSuchField", 5))
	ctx := context.Background()
	userID := uuid.New()

	unlocked, err := ev.Evaluate(ctx, userID, stats.Snapshot{TotalEntries: 100})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 0 {
		t.Fatal("expected no unlock for an unscorable definition")
	}
	def, _ := ds.GetByName(ctx, "mystery")
	if _, err := ls.Get(ctx, userID, def.ID); err == nil {
		t.Fatal("expected no ledger entry for a skipped definition")
	}
}

func TestEvaluate_CustomPredicate(t *testing.T) {
	def := Definition{
		Name:     "critic",
		Category: "special",
		Rarity:   "epic",
		Criteria: Criteria{Type: CriteriaCustom},
		Rewards:  Rewards{Points: 40},
		IsActive: true,
	}
	ev, _, _ := newTestEvaluator(t, def)
	RegisterBuiltins(ev.Registry, nil)
	ctx := context.Background()
	userID := uuid.New()

	// Unrated entries: predicate fails, nothing unlocks.
	unlocked, err := ev.Evaluate(ctx, userID, stats.Snapshot{TotalEntries: 3, RatedCount: 2})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 0 {
		t.Fatal("expected no unlock while the predicate fails")
	}

	unlocked, err = ev.Evaluate(ctx, userID, stats.Snapshot{TotalEntries: 3, RatedCount: 3})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Definition.Name != "critic" {
		t.Fatalf("expected the custom unlock, got %d", len(unlocked))
	}
}

func TestDefinitionValidate(t *testing.T) {
	cases := []struct {
		name string
		def  Definition
		ok   bool
	}{
		{"valid count", countDef("a", 5, "totalEntries", 1), true},
		{"missing target", Definition{Name: "b", Criteria: Criteria{Type: CriteriaCount, Field: "totalEntries"}}, false},
		{"missing field", Definition{Name: "c", Criteria: Criteria{Type: CriteriaTime, Target: 10}}, false},
		{"custom needs neither", Definition{Name: "d", Criteria: Criteria{Type: CriteriaCustom}}, true},
		{"unknown type", Definition{Name: "e", Criteria: Criteria{Type: "vibes", Target: 1, Field: "x"}}, false},
		{"missing name", Definition{Criteria: Criteria{Type: CriteriaCustom}}, false},
	}
	for _, tc := range cases {
		err := tc.def.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
