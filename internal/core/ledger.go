package core

import (
	"time"

	"github.com/google/uuid"
)

// NewAppData bootstraps an empty aggregate for a household, seeded with the
// canonical categories and the sentinel bank account.
func NewAppData(period Period) AppData {
	return AppData{
		CurrentPeriod: period,
		Categories:    DefaultCategories(),
		BankAccounts: []BankAccount{
			{ID: DefaultBankAccountID, Name: "Compte courant", IsDefault: true},
		},
	}
}

// AddBudget appends a budget to the live ledger with Spent reset and
// Remaining equal to Amount. A missing bank account falls back to the
// sentinel default.
func (a *AppData) AddBudget(b Budget) (Budget, error) {
	if err := b.Validate(); err != nil {
		return Budget{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.BankAccountID == "" {
		b.BankAccountID = DefaultBankAccountID
	}
	b.Spent = Money{}
	b.Remaining = b.Amount
	a.Budgets = append(a.Budgets, b)
	return b, nil
}

// UpdateBudget replaces a ledger entry by id. Remaining is normalized to
// Amount - Spent so the ledger invariant survives callers that only edit
// Amount.
func (a *AppData) UpdateBudget(b Budget) (Budget, error) {
	cur := a.BudgetByID(b.ID)
	if cur == nil {
		return Budget{}, ErrBudgetNotFound
	}
	if err := b.Validate(); err != nil {
		return Budget{}, err
	}
	if b.BankAccountID == "" {
		b.BankAccountID = DefaultBankAccountID
	}
	b.Remaining = b.Amount.Sub(b.Spent)
	*cur = b
	return b, nil
}

// DeleteBudget removes a budget from the live ledger. Period snapshots keep
// their copy and expenses referencing it are not cascaded. Returns false when
// the id is not in the ledger.
func (a *AppData) DeleteBudget(id string) bool {
	for i := range a.Budgets {
		if a.Budgets[i].ID == id {
			a.Budgets = append(a.Budgets[:i], a.Budgets[i+1:]...)
			return true
		}
	}
	return false
}

// AddExpense records an expense against a live budget: Spent grows by the
// expense amount, Remaining is recomputed, and the expense is appended to the
// current period's log. The first expense of a period creates that period's
// history entry from a deep copy of the ledger.
func (a *AppData) AddExpense(e Expense) (Expense, error) {
	if err := e.Validate(); err != nil {
		return Expense{}, err
	}
	b := a.BudgetByID(e.BudgetID)
	if b == nil {
		return Expense{}, ErrBudgetNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.BankAccountID == "" {
		e.BankAccountID = b.BankAccountID
	}
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	b.Spent = b.Spent.Add(e.Amount)
	b.Remaining = b.Amount.Sub(b.Spent)
	snap := a.ensureCurrentSnapshot()
	snap.Expenses = append(snap.Expenses, e)
	return e, nil
}

// DeleteExpense removes an expense from the given period's log and, when the
// budget it was charged to still exists in the live ledger, hands the amount
// back. Missing periods, missing expenses and deleted budgets are silent
// no-ops, so the call is idempotent. Returns whether an expense was removed.
func (a *AppData) DeleteExpense(expenseID string, period Period) bool {
	snap := a.Snapshot(period)
	if snap == nil {
		return false
	}
	for i, e := range snap.Expenses {
		if e.ID != expenseID {
			continue
		}
		if b := a.BudgetByID(e.BudgetID); b != nil {
			b.Spent = b.Spent.Sub(e.Amount)
			b.Remaining = b.Amount.Sub(b.Spent)
		}
		snap.Expenses = append(snap.Expenses[:i], snap.Expenses[i+1:]...)
		return true
	}
	return false
}

// ResetBudgetExpenses drops the current period's log entries for one budget.
// Amounts are untouched; ResetBudgetToReference is the full reset path.
func (a *AppData) ResetBudgetExpenses(budgetID string) {
	snap := a.Snapshot(a.CurrentPeriod)
	if snap == nil {
		return
	}
	kept := snap.Expenses[:0]
	for _, e := range snap.Expenses {
		if e.BudgetID != budgetID {
			kept = append(kept, e)
		}
	}
	snap.Expenses = kept
}

// ResetBudgetToReference puts a budget back on its template: Amount becomes
// the reference amount, Spent resets, and the budget's current-period
// expenses are cleared. No carry-over applies on this path.
func (a *AppData) ResetBudgetToReference(refs []ReferenceBudget, budgetID string) error {
	b := a.BudgetByID(budgetID)
	if b == nil {
		return ErrBudgetNotFound
	}
	ref, err := FindReference(refs, *b)
	if err != nil {
		return err
	}
	if ref == nil {
		return ErrReferenceNotFound
	}
	b.ReferenceID = ref.ID
	b.Amount = ref.Amount
	b.Spent = Money{}
	b.Remaining = b.Amount
	a.ResetBudgetExpenses(budgetID)
	return nil
}

// DeleteSnapshot removes one archived period by exact key. The live ledger is
// untouched. Returns false when the period is not archived.
func (a *AppData) DeleteSnapshot(period Period) bool {
	for i := range a.History {
		if a.History[i].Period == period {
			a.History = append(a.History[:i], a.History[i+1:]...)
			return true
		}
	}
	return false
}

// ClearHistory drops every archived period.
func (a *AppData) ClearHistory() {
	a.History = nil
}

// FindReference resolves the template for a ledger budget: by stable
// reference id first, then by normalized title for legacy entries. A title
// matching several templates is ErrAmbiguousReference; no match at all
// returns nil.
func FindReference(refs []ReferenceBudget, b Budget) (*ReferenceBudget, error) {
	if b.ReferenceID != "" {
		for i := range refs {
			if refs[i].ID == b.ReferenceID {
				return &refs[i], nil
			}
		}
	}
	title := NormalizeTitle(b.Title)
	var found *ReferenceBudget
	for i := range refs {
		if NormalizeTitle(refs[i].Title) != title {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousReference
		}
		found = &refs[i]
	}
	return found, nil
}

// ensureCurrentSnapshot returns the open period's history entry, creating it
// from a deep copy of the ledger on first use.
func (a *AppData) ensureCurrentSnapshot() *PeriodSnapshot {
	if s := a.Snapshot(a.CurrentPeriod); s != nil {
		return s
	}
	a.History = append(a.History, PeriodSnapshot{
		Period:  a.CurrentPeriod,
		Budgets: a.CloneBudgets(),
	})
	return &a.History[len(a.History)-1]
}
