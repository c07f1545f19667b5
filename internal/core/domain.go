package core

import (
	"errors"
	"strings"
	"time"
)

// Carry policies for budget categories.
const (
	PolicyReset     Policy = "reset"
	PolicyCarryOver Policy = "carry-over"
)

// DefaultBankAccountID is the sentinel account assigned to budgets and
// expenses created without an explicit bank account.
const DefaultBankAccountID = "default"

type (
	Policy string

	Money struct {
		Cents int64 `json:"cents"`
	}

	Category struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}

	BankAccount struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IsDefault bool   `json:"isDefault"`
	}

	// ReferenceBudget is the template a live budget resets to. The set of
	// reference budgets lives in its own store namespace, independent of any
	// period.
	ReferenceBudget struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Amount     Money  `json:"amount"`
		CategoryID string `json:"categoryId"`
	}

	// Budget is a ledger entry for the current period. Amount is the
	// effective reference for this period and may differ from the template
	// after carry-over. Remaining == Amount - Spent holds after every
	// mutation.
	Budget struct {
		ID            string `json:"id"`
		ReferenceID   string `json:"referenceId,omitempty"`
		Title         string `json:"title"`
		Amount        Money  `json:"amount"`
		Spent         Money  `json:"spent"`
		Remaining     Money  `json:"remaining"`
		CategoryID    string `json:"categoryId"`
		BankAccountID string `json:"bankAccountId,omitempty"`
	}

	Expense struct {
		ID            string    `json:"id"`
		Amount        Money     `json:"amount"`
		Description   string    `json:"description"`
		Date          time.Time `json:"date"`
		BudgetID      string    `json:"budgetId"`
		BankAccountID string    `json:"bankAccountId,omitempty"`
		User          string    `json:"user,omitempty"`
	}

	// PeriodSnapshot archives one month: the ledger as it stood and every
	// expense recorded in it. The snapshot of the open period doubles as its
	// live expense log.
	PeriodSnapshot struct {
		Period   Period    `json:"period"`
		Budgets  []Budget  `json:"budgets"`
		Expenses []Expense `json:"expenses"`
	}

	// AppData is the aggregate root and the unit of persistence: every
	// mutation loads it whole, changes it in memory and saves it whole.
	// Revision is the compare-and-swap token checked by Store.Save.
	AppData struct {
		Revision      int64            `json:"revision"`
		CurrentPeriod Period           `json:"currentPeriod"`
		Budgets       []Budget         `json:"budgets"`
		BankAccounts  []BankAccount    `json:"bankAccounts"`
		Categories    []Category       `json:"categories"`
		History       []PeriodSnapshot `json:"history"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyTitle         = errors.New("empty title")
	ErrEmptyCategory      = errors.New("empty category")
	ErrBudgetNotFound     = errors.New("budget not found")
	ErrPeriodNotFound     = errors.New("period not found")
	ErrReferenceNotFound  = errors.New("reference budget not found")
	ErrAmbiguousReference = errors.New("ambiguous reference budget title")
)

func (e Expense) Validate() error {
	if e.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(e.BudgetID) == "" {
		return ErrBudgetNotFound
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return ErrEmptyTitle
	}
	if b.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// NormalizeTitle is the legacy join key between a ledger budget and its
// reference template: trimmed, casefolded, inner whitespace collapsed.
func NormalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// CategoryName resolves a category id to its name, empty when unknown.
func (a *AppData) CategoryName(id string) string {
	for _, c := range a.Categories {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

// Snapshot returns the history entry for period, or nil.
func (a *AppData) Snapshot(period Period) *PeriodSnapshot {
	for i := range a.History {
		if a.History[i].Period == period {
			return &a.History[i]
		}
	}
	return nil
}

// BudgetByID returns the live ledger entry for id, or nil.
func (a *AppData) BudgetByID(id string) *Budget {
	for i := range a.Budgets {
		if a.Budgets[i].ID == id {
			return &a.Budgets[i]
		}
	}
	return nil
}

// CloneBudgets deep-copies the live ledger, for period snapshots.
func (a *AppData) CloneBudgets() []Budget {
	out := make([]Budget, len(a.Budgets))
	copy(out, a.Budgets)
	return out
}

// Clone deep-copies the whole aggregate. Stores hand out clones so callers
// can mutate freely before saving.
func (a AppData) Clone() AppData {
	out := a
	out.Budgets = append([]Budget(nil), a.Budgets...)
	out.BankAccounts = append([]BankAccount(nil), a.BankAccounts...)
	out.Categories = append([]Category(nil), a.Categories...)
	out.History = make([]PeriodSnapshot, len(a.History))
	for i, s := range a.History {
		out.History[i] = PeriodSnapshot{
			Period:   s.Period,
			Budgets:  append([]Budget(nil), s.Budgets...),
			Expenses: append([]Expense(nil), s.Expenses...),
		}
	}
	return out
}
