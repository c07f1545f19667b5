package core

import "fmt"

// CarryMode selects how the rollover engine treats leftover balances.
type CarryMode string

const (
	// CarryPolicy consults the category policy table: carry-over categories
	// keep their leftover balance, reset categories go back to the reference
	// amount.
	CarryPolicy CarryMode = "policy"

	// CarryAlways reproduces the historical behavior: every leftover balance,
	// positive or negative, lands on top of the reference amount regardless
	// of the category policy.
	CarryAlways CarryMode = "always"
)

// ParseCarryMode validates a configured carry mode string.
func ParseCarryMode(s string) (CarryMode, error) {
	switch CarryMode(s) {
	case CarryPolicy, CarryAlways:
		return CarryMode(s), nil
	case "":
		return CarryPolicy, nil
	}
	return "", fmt.Errorf("invalid carry mode %q", s)
}

// AdvanceToNextPeriod closes the current period and opens the next one.
//
// The closing month is always archived: its snapshot is created if missing
// and refreshed with the final ledger state, keeping whatever expenses it
// accumulated. Each budget is then re-based for the new month: budgets with
// a reference template get a fresh Amount per the carry mode, budgets
// without one (manual, non-templated entries) keep their Amount as-is.
// Spent and Remaining reset for every budget either way.
//
// The leftover that carries is the whole Remaining balance, so an overspent
// carry-over budget starts the new month below its reference amount.
func (a *AppData) AdvanceToNextPeriod(refs []ReferenceBudget, mode CarryMode) (Period, error) {
	if err := a.CurrentPeriod.Validate(); err != nil {
		return "", fmt.Errorf("current period: %w", err)
	}
	closing := a.CurrentPeriod
	if snap := a.Snapshot(closing); snap != nil {
		snap.Budgets = a.CloneBudgets()
	} else {
		a.History = append(a.History, PeriodSnapshot{
			Period:   closing,
			Budgets:  a.CloneBudgets(),
			Expenses: []Expense{},
		})
	}

	for i := range a.Budgets {
		b := &a.Budgets[i]
		ref, err := FindReference(refs, *b)
		if err != nil {
			return "", fmt.Errorf("roll budget %q: %w", b.Title, err)
		}
		if ref != nil {
			b.ReferenceID = ref.ID
			carry := b.Remaining
			switch mode {
			case CarryAlways:
				b.Amount = ref.Amount.Add(carry)
			default:
				if IsCarryOver(a.CategoryName(b.CategoryID)) {
					b.Amount = ref.Amount.Add(carry)
				} else {
					b.Amount = ref.Amount
				}
			}
		}
		b.Spent = Money{}
		b.Remaining = b.Amount
	}

	a.CurrentPeriod = closing.Next()
	return a.CurrentPeriod, nil
}
