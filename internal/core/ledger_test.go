package core

import (
	"errors"
	"testing"
)

func testAggregate() AppData {
	a := NewAppData("2024-06")
	a.Budgets = []Budget{
		{ID: "b1", Title: "Clope", Amount: Money{Cents: 10000}, Remaining: Money{Cents: 10000}, CategoryID: "courant", BankAccountID: DefaultBankAccountID},
		{ID: "b2", Title: "Cadeaux", Amount: Money{Cents: 5000}, Remaining: Money{Cents: 5000}, CategoryID: "annuel", BankAccountID: DefaultBankAccountID},
	}
	return a
}

func assertInvariant(t *testing.T, a *AppData) {
	t.Helper()
	for _, b := range a.Budgets {
		if b.Remaining.Cents != b.Amount.Cents-b.Spent.Cents {
			t.Fatalf("budget %q: remaining %d != amount %d - spent %d",
				b.Title, b.Remaining.Cents, b.Amount.Cents, b.Spent.Cents)
		}
	}
}

func TestAddExpense(t *testing.T) {
	a := testAggregate()
	e, err := a.AddExpense(Expense{Amount: Money{Cents: 4000}, Description: "Taxi", BudgetID: "b1", User: "alice"})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	b := a.BudgetByID("b1")
	if b.Spent.Cents != 4000 || b.Remaining.Cents != 6000 {
		t.Fatalf("spent=%d remaining=%d", b.Spent.Cents, b.Remaining.Cents)
	}
	assertInvariant(t, &a)

	// First expense of the period creates the snapshot from a ledger copy.
	snap := a.Snapshot("2024-06")
	if snap == nil {
		t.Fatal("expected snapshot for current period")
	}
	if len(snap.Expenses) != 1 || snap.Expenses[0].ID != e.ID {
		t.Fatalf("snapshot expenses = %+v", snap.Expenses)
	}
	if len(snap.Budgets) != 2 {
		t.Fatalf("snapshot budgets = %d", len(snap.Budgets))
	}
}

func TestAddExpenseValidation(t *testing.T) {
	cases := []struct {
		name    string
		expense Expense
		want    error
	}{
		{"zero amount", Expense{Amount: Money{}, Description: "x", BudgetID: "b1"}, ErrInvalidAmount},
		{"negative amount", Expense{Amount: Money{Cents: -100}, Description: "x", BudgetID: "b1"}, ErrInvalidAmount},
		{"empty description", Expense{Amount: Money{Cents: 100}, Description: "  ", BudgetID: "b1"}, ErrEmptyDescription},
		{"no budget id", Expense{Amount: Money{Cents: 100}, Description: "x"}, ErrBudgetNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := testAggregate()
			if _, err := a.AddExpense(tc.expense); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if a.Snapshot("2024-06") != nil {
				t.Fatal("rejected expense must not create a snapshot")
			}
		})
	}
}

func TestAddExpenseUnknownBudget(t *testing.T) {
	a := testAggregate()
	if _, err := a.AddExpense(Expense{Amount: Money{Cents: 100}, Description: "x", BudgetID: "nope"}); !errors.Is(err, ErrBudgetNotFound) {
		t.Fatalf("expected ErrBudgetNotFound, got %v", err)
	}
}

func TestDeleteExpense(t *testing.T) {
	a := testAggregate()
	e, _ := a.AddExpense(Expense{Amount: Money{Cents: 4000}, Description: "Taxi", BudgetID: "b1"})

	if !a.DeleteExpense(e.ID, "2024-06") {
		t.Fatal("expected removal")
	}
	b := a.BudgetByID("b1")
	if b.Spent.Cents != 0 || b.Remaining.Cents != 10000 {
		t.Fatalf("spent=%d remaining=%d", b.Spent.Cents, b.Remaining.Cents)
	}
	if len(a.Snapshot("2024-06").Expenses) != 0 {
		t.Fatal("expense still in snapshot")
	}

	// Second delete is a no-op.
	if a.DeleteExpense(e.ID, "2024-06") {
		t.Fatal("second delete should be a no-op")
	}
	assertInvariant(t, &a)
}

func TestDeleteExpenseMissingPeriod(t *testing.T) {
	a := testAggregate()
	if a.DeleteExpense("whatever", "2019-01") {
		t.Fatal("expected no-op for unknown period")
	}
}

func TestDeleteExpenseAfterBudgetDeleted(t *testing.T) {
	a := testAggregate()
	e, _ := a.AddExpense(Expense{Amount: Money{Cents: 500}, Description: "bus", BudgetID: "b1"})
	a.DeleteBudget("b1")

	// The expense goes away but no ledger adjustment happens.
	if !a.DeleteExpense(e.ID, "2024-06") {
		t.Fatal("expected removal")
	}
	if a.BudgetByID("b1") != nil {
		t.Fatal("budget should stay deleted")
	}
}

func TestAddBudget(t *testing.T) {
	a := testAggregate()
	b, err := a.AddBudget(Budget{Title: "Courses", Amount: Money{Cents: 20000}, CategoryID: "courant"})
	if err != nil {
		t.Fatalf("add budget: %v", err)
	}
	if b.ID == "" || b.BankAccountID != DefaultBankAccountID {
		t.Fatalf("budget = %+v", b)
	}
	if b.Spent.Cents != 0 || b.Remaining.Cents != 20000 {
		t.Fatalf("spent=%d remaining=%d", b.Spent.Cents, b.Remaining.Cents)
	}

	for _, bad := range []Budget{
		{Amount: Money{Cents: 100}, CategoryID: "courant"},         // no title
		{Title: "x", Amount: Money{Cents: -1}, CategoryID: "c"},    // negative amount
		{Title: "x", Amount: Money{Cents: 100}},                    // no category
	} {
		if _, err := a.AddBudget(bad); err == nil {
			t.Fatalf("expected error for %+v", bad)
		}
	}
}

func TestUpdateBudgetNormalizesRemaining(t *testing.T) {
	a := testAggregate()
	a.AddExpense(Expense{Amount: Money{Cents: 3000}, Description: "x", BudgetID: "b1"})

	// Caller edits Amount and supplies a stale Remaining.
	edited := *a.BudgetByID("b1")
	edited.Amount = Money{Cents: 15000}
	edited.Remaining = Money{Cents: 12345}
	got, err := a.UpdateBudget(edited)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Remaining.Cents != 12000 {
		t.Fatalf("remaining = %d, want 12000", got.Remaining.Cents)
	}
	assertInvariant(t, &a)

	edited.ID = "nope"
	if _, err := a.UpdateBudget(edited); !errors.Is(err, ErrBudgetNotFound) {
		t.Fatalf("expected ErrBudgetNotFound, got %v", err)
	}
}

func TestDeleteBudgetKeepsHistory(t *testing.T) {
	a := testAggregate()
	a.AddExpense(Expense{Amount: Money{Cents: 100}, Description: "x", BudgetID: "b1"})
	if !a.DeleteBudget("b1") {
		t.Fatal("expected removal")
	}
	if a.DeleteBudget("b1") {
		t.Fatal("second delete should be a no-op")
	}
	snap := a.Snapshot("2024-06")
	found := false
	for _, b := range snap.Budgets {
		if b.ID == "b1" {
			found = true
		}
	}
	if !found {
		t.Fatal("archived snapshot lost the deleted budget")
	}
	if len(snap.Expenses) != 1 {
		t.Fatal("expense should stay in the log")
	}
}

func TestResetBudgetExpenses(t *testing.T) {
	a := testAggregate()
	a.AddExpense(Expense{Amount: Money{Cents: 100}, Description: "a", BudgetID: "b1"})
	a.AddExpense(Expense{Amount: Money{Cents: 200}, Description: "b", BudgetID: "b2"})

	a.ResetBudgetExpenses("b1")
	snap := a.Snapshot("2024-06")
	if len(snap.Expenses) != 1 || snap.Expenses[0].BudgetID != "b2" {
		t.Fatalf("expenses = %+v", snap.Expenses)
	}
	// Amounts untouched on this path.
	if a.BudgetByID("b1").Spent.Cents != 100 {
		t.Fatal("spent should not change")
	}
}

func TestResetBudgetToReference(t *testing.T) {
	refs := []ReferenceBudget{{ID: "r1", Title: "Clope", Amount: Money{Cents: 10000}, CategoryID: "courant"}}
	a := testAggregate()
	// Overspend b1: remaining goes to -3000.
	a.AddExpense(Expense{Amount: Money{Cents: 13000}, Description: "x", BudgetID: "b1"})

	if err := a.ResetBudgetToReference(refs, "b1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	b := a.BudgetByID("b1")
	if b.Amount.Cents != 10000 || b.Spent.Cents != 0 || b.Remaining.Cents != 10000 {
		t.Fatalf("budget = %+v", b)
	}
	if b.ReferenceID != "r1" {
		t.Fatalf("reference id = %q", b.ReferenceID)
	}
	if len(a.Snapshot("2024-06").Expenses) != 0 {
		t.Fatal("expected cleared expense log")
	}

	if err := a.ResetBudgetToReference(refs, "b2"); !errors.Is(err, ErrReferenceNotFound) {
		t.Fatalf("expected ErrReferenceNotFound, got %v", err)
	}
	if err := a.ResetBudgetToReference(refs, "nope"); !errors.Is(err, ErrBudgetNotFound) {
		t.Fatalf("expected ErrBudgetNotFound, got %v", err)
	}
}

func TestFindReference(t *testing.T) {
	refs := []ReferenceBudget{
		{ID: "r1", Title: "Clope", Amount: Money{Cents: 100}},
		{ID: "r2", Title: "Cadeaux", Amount: Money{Cents: 200}},
	}

	// Stable id wins even when the title was renamed.
	ref, err := FindReference(refs, Budget{ReferenceID: "r2", Title: "Autre chose"})
	if err != nil || ref == nil || ref.ID != "r2" {
		t.Fatalf("ref=%v err=%v", ref, err)
	}

	// Legacy entries match by normalized title.
	ref, err = FindReference(refs, Budget{Title: "  clope "})
	if err != nil || ref == nil || ref.ID != "r1" {
		t.Fatalf("ref=%v err=%v", ref, err)
	}

	// No match is not an error.
	ref, err = FindReference(refs, Budget{Title: "Inconnu"})
	if err != nil || ref != nil {
		t.Fatalf("ref=%v err=%v", ref, err)
	}

	dup := append(refs, ReferenceBudget{ID: "r3", Title: "CLOPE"})
	if _, err := FindReference(dup, Budget{Title: "Clope"}); !errors.Is(err, ErrAmbiguousReference) {
		t.Fatalf("expected ErrAmbiguousReference, got %v", err)
	}
}

func TestDeleteSnapshotAndClearHistory(t *testing.T) {
	a := testAggregate()
	a.AddExpense(Expense{Amount: Money{Cents: 100}, Description: "x", BudgetID: "b1"})
	if !a.DeleteSnapshot("2024-06") {
		t.Fatal("expected removal")
	}
	if a.DeleteSnapshot("2024-06") {
		t.Fatal("second delete should be a no-op")
	}
	// Live ledger untouched.
	if a.BudgetByID("b1").Spent.Cents != 100 {
		t.Fatal("ledger changed")
	}

	a.AddExpense(Expense{Amount: Money{Cents: 50}, Description: "y", BudgetID: "b1"})
	a.ClearHistory()
	if len(a.History) != 0 {
		t.Fatal("history not cleared")
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Clope", "clope"},
		{"  Clope  ", "clope"},
		{"Grosses   Courses", "grosses courses"},
		{"ÉPARGNE", "épargne"},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Fatalf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
