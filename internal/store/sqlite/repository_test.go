package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tirelire/internal/core"
	"tirelire/internal/store"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := NewRepository(filepath.Join(t.TempDir(), "tirelire.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := testRepo(t)

	data := core.NewAppData("2024-06")
	data.Budgets = []core.Budget{{ID: "b1", Title: "Clope", Amount: core.Money{Cents: 30000}, Remaining: core.Money{Cents: 30000}, CategoryID: "courant"}}
	if err := r.Save(ctx, "household-x", data); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := r.Load(ctx, "household-x")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Revision != 1 || got.CurrentPeriod != "2024-06" {
		t.Fatalf("got %+v", got)
	}
	if len(got.Budgets) != 1 || got.Budgets[0].Amount.Cents != 30000 {
		t.Fatalf("budgets = %+v", got.Budgets)
	}
}

func TestLoadMissing(t *testing.T) {
	r := testRepo(t)
	if _, err := r.Load(context.Background(), "household-none"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveConflict(t *testing.T) {
	ctx := context.Background()
	r := testRepo(t)
	data := core.NewAppData("2024-06")

	if err := r.Save(ctx, "k", data); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := r.Save(ctx, "k", data); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	fresh, _ := r.Load(ctx, "k")
	if err := r.Save(ctx, "k", fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := testRepo(t)
	refs := []core.ReferenceBudget{{ID: "r1", Title: "Clope", Amount: core.Money{Cents: 30000}, CategoryID: "courant"}}

	if err := r.SaveReferences(ctx, "references-x", refs); err != nil {
		t.Fatalf("save refs: %v", err)
	}
	got, err := r.LoadReferences(ctx, "references-x")
	if err != nil || len(got) != 1 || got[0].Title != "Clope" {
		t.Fatalf("got %+v, %v", got, err)
	}
	if _, err := r.LoadReferences(ctx, "references-none"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	r := testRepo(t)

	if err := r.MarkPushPending(ctx, "household-x", 3); err != nil {
		t.Fatalf("mark pending: %v", err)
	}
	pending, err := r.PendingPushes(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if pending[0].HouseholdKey != "household-x" || pending[0].Revision != 3 {
		t.Fatalf("pending row = %+v", pending[0])
	}

	// A newer revision supersedes the queued one.
	if err := r.MarkPushPending(ctx, "household-x", 4); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	// Completing the old revision must not close the newer request.
	if err := r.MarkPushSynced(ctx, "household-x", 3); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, _ = r.PendingPushes(ctx, 10)
	if len(pending) != 1 || pending[0].Revision != 4 {
		t.Fatalf("pending = %+v", pending)
	}

	if err := r.MarkPushSynced(ctx, "household-x", 4); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, _ = r.PendingPushes(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestOutboxErrorKeepsPending(t *testing.T) {
	ctx := context.Background()
	r := testRepo(t)
	r.MarkPushPending(ctx, "household-x", 1)

	if err := r.MarkPushError(ctx, "household-x", errors.New("mirror down")); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	pending, _ := r.PendingPushes(ctx, 10)
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("pending = %+v", pending)
	}
}
