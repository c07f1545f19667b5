// Package services orchestrates the core ledger operations over the storage
// port: load the aggregate, apply the mutation, save under compare-and-swap,
// then queue a mirror push. Queue failures never fail the user action; the
// outbox sweep picks the push up later.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tirelire/internal/core"
	"tirelire/internal/session"
	"tirelire/internal/store"
)

// Publisher queues mirror-push requests (the AMQP client in production).
type Publisher interface {
	PublishPush(ctx context.Context, householdKey string, revision int64) error
}

// Outbox tracks which households still need a mirror push (the sqlite
// repository in production).
type Outbox interface {
	MarkPushPending(ctx context.Context, householdKey string, revision int64) error
	MarkPushSynced(ctx context.Context, householdKey string, revision int64) error
}

// Options configures the optional collaborators of a LedgerService. Any of
// them may be nil: the service then runs local-only.
type Options struct {
	Mirror    store.Store
	Outbox    Outbox
	Queue     Publisher
	CarryMode core.CarryMode
	Now       func() time.Time
}

type LedgerService struct {
	local     store.Store
	mirror    store.Store
	outbox    Outbox
	queue     Publisher
	carryMode core.CarryMode
	now       func() time.Time
}

func NewLedgerService(local store.Store, opts Options) *LedgerService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	mode := opts.CarryMode
	if mode == "" {
		mode = core.CarryPolicy
	}
	return &LedgerService{
		local:     local,
		mirror:    opts.Mirror,
		outbox:    opts.Outbox,
		queue:     opts.Queue,
		carryMode: mode,
		now:       now,
	}
}

// Ledger returns the household aggregate, bootstrapping and persisting a
// fresh one on first contact.
func (s *LedgerService) Ledger(ctx context.Context, sess *session.Session) (core.AppData, error) {
	key, err := sess.HouseholdKey()
	if err != nil {
		return core.AppData{}, err
	}
	data, created, err := s.loadOrInit(ctx, key)
	if err != nil {
		return core.AppData{}, err
	}
	if created {
		if err := s.saveAndQueue(ctx, key, &data); err != nil {
			return core.AppData{}, err
		}
	}
	return data, nil
}

// AddExpense records an expense attributed to the session identity.
func (s *LedgerService) AddExpense(ctx context.Context, sess *session.Session, e core.Expense) (core.Expense, error) {
	identity, err := sess.Identity()
	if err != nil {
		return core.Expense{}, err
	}
	e.User = identity
	if e.Date.IsZero() {
		e.Date = s.now()
	}

	var added core.Expense
	err = s.mutate(ctx, sess, func(data *core.AppData) error {
		var err error
		added, err = data.AddExpense(e)
		return err
	})
	return added, err
}

// DeleteExpense removes an expense from a period's log. Unknown ids and
// periods are silent no-ops, matching the idempotent delete contract.
func (s *LedgerService) DeleteExpense(ctx context.Context, sess *session.Session, expenseID string, period core.Period) error {
	return s.mutate(ctx, sess, func(data *core.AppData) error {
		if !data.DeleteExpense(expenseID, period) {
			slog.DebugContext(ctx, "Delete expense was a no-op",
				"expense_id", expenseID, "period", period.String())
		}
		return nil
	})
}

func (s *LedgerService) AddBudget(ctx context.Context, sess *session.Session, b core.Budget) (core.Budget, error) {
	var added core.Budget
	err := s.mutate(ctx, sess, func(data *core.AppData) error {
		var err error
		added, err = data.AddBudget(b)
		return err
	})
	return added, err
}

func (s *LedgerService) UpdateBudget(ctx context.Context, sess *session.Session, b core.Budget) (core.Budget, error) {
	var updated core.Budget
	err := s.mutate(ctx, sess, func(data *core.AppData) error {
		var err error
		updated, err = data.UpdateBudget(b)
		return err
	})
	return updated, err
}

func (s *LedgerService) DeleteBudget(ctx context.Context, sess *session.Session, budgetID string) error {
	return s.mutate(ctx, sess, func(data *core.AppData) error {
		if !data.DeleteBudget(budgetID) {
			return core.ErrBudgetNotFound
		}
		return nil
	})
}

// ResetBudget puts one budget back on its reference template.
func (s *LedgerService) ResetBudget(ctx context.Context, sess *session.Session, budgetID string) error {
	refs, err := s.References(ctx, sess)
	if err != nil {
		return err
	}
	return s.mutate(ctx, sess, func(data *core.AppData) error {
		return data.ResetBudgetToReference(refs, budgetID)
	})
}

// Rollover closes the current period and opens the next one.
func (s *LedgerService) Rollover(ctx context.Context, sess *session.Session) (core.Period, error) {
	refs, err := s.References(ctx, sess)
	if err != nil {
		return "", err
	}
	var next core.Period
	err = s.mutate(ctx, sess, func(data *core.AppData) error {
		var err error
		next, err = data.AdvanceToNextPeriod(refs, s.carryMode)
		return err
	})
	return next, err
}

func (s *LedgerService) History(ctx context.Context, sess *session.Session) ([]core.PeriodSnapshot, error) {
	data, err := s.Ledger(ctx, sess)
	if err != nil {
		return nil, err
	}
	return data.History, nil
}

func (s *LedgerService) DeleteHistory(ctx context.Context, sess *session.Session, period core.Period) error {
	return s.mutate(ctx, sess, func(data *core.AppData) error {
		if !data.DeleteSnapshot(period) {
			return core.ErrPeriodNotFound
		}
		return nil
	})
}

func (s *LedgerService) ClearHistory(ctx context.Context, sess *session.Session) error {
	return s.mutate(ctx, sess, func(data *core.AppData) error {
		data.ClearHistory()
		return nil
	})
}

// References returns the household's template set. An empty or missing set
// is bootstrapped by cloning the live ledger, so every household has at
// least one consistent reference set.
func (s *LedgerService) References(ctx context.Context, sess *session.Session) ([]core.ReferenceBudget, error) {
	refKey, err := sess.ReferenceKey()
	if err != nil {
		return nil, err
	}

	refs, err := s.local.LoadReferences(ctx, refKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if len(refs) > 0 {
		return refs, nil
	}

	data, err := s.Ledger(ctx, sess)
	if err != nil {
		return nil, err
	}
	refs = make([]core.ReferenceBudget, 0, len(data.Budgets))
	for _, b := range data.Budgets {
		id := b.ReferenceID
		if id == "" {
			id = uuid.NewString()
		}
		refs = append(refs, core.ReferenceBudget{
			ID:         id,
			Title:      b.Title,
			Amount:     b.Amount,
			CategoryID: b.CategoryID,
		})
	}
	if len(refs) > 0 {
		if err := s.local.SaveReferences(ctx, refKey, refs); err != nil {
			return nil, fmt.Errorf("seed reference set: %w", err)
		}
		slog.InfoContext(ctx, "Seeded reference set from ledger",
			"reference_key", refKey, "count", len(refs))
	}
	return refs, nil
}

// SaveReferences replaces the template set wholesale, assigning ids to new
// entries, and queues a mirror push so the templates travel with the
// household. Duplicate titles are allowed here; rollover surfaces them as
// ErrAmbiguousReference when they actually bite.
func (s *LedgerService) SaveReferences(ctx context.Context, sess *session.Session, refs []core.ReferenceBudget) error {
	refKey, err := sess.ReferenceKey()
	if err != nil {
		return err
	}
	for i := range refs {
		if refs[i].ID == "" {
			refs[i].ID = uuid.NewString()
		}
	}
	if err := s.local.SaveReferences(ctx, refKey, refs); err != nil {
		return err
	}

	// The worker pushes references alongside the aggregate, so queueing the
	// household at its current revision is enough.
	key, err := sess.HouseholdKey()
	if err != nil {
		return err
	}
	revision := int64(0)
	if data, err := s.local.Load(ctx, key); err == nil {
		revision = data.Revision
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load household %s: %w", key, err)
	}
	s.queuePush(ctx, key, revision)
	return nil
}

// ForceSync pushes the household to the mirror inline and surfaces any
// failure to the caller, unlike the background path which logs and moves on.
func (s *LedgerService) ForceSync(ctx context.Context, sess *session.Session) error {
	if s.mirror == nil {
		return errors.New("no mirror backend configured")
	}
	key, err := sess.HouseholdKey()
	if err != nil {
		return err
	}
	data, err := s.local.Load(ctx, key)
	if err != nil {
		return err
	}
	if err := s.mirror.Save(ctx, key, data); err != nil {
		return fmt.Errorf("push to mirror: %w", err)
	}
	refKey, err := sess.ReferenceKey()
	if err != nil {
		return err
	}
	refs, err := s.local.LoadReferences(ctx, refKey)
	switch {
	case err == nil && len(refs) > 0:
		if err := s.mirror.SaveReferences(ctx, refKey, refs); err != nil {
			return fmt.Errorf("push references to mirror: %w", err)
		}
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("load references %s: %w", refKey, err)
	}
	if s.outbox != nil {
		if err := s.outbox.MarkPushSynced(ctx, key, data.Revision); err != nil {
			slog.WarnContext(ctx, "Failed to mark push synced", "key", key, "error", err)
		}
	}
	slog.InfoContext(ctx, "Forced mirror sync", "key", key, "revision", data.Revision)
	return nil
}

// Ready reports whether the local store answers queries. A missing probe
// key is a healthy answer.
func (s *LedgerService) Ready(ctx context.Context) error {
	_, err := s.local.Load(ctx, "readyz-probe")
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// mutate runs one load-mutate-save cycle for the session household.
func (s *LedgerService) mutate(ctx context.Context, sess *session.Session, fn func(*core.AppData) error) error {
	key, err := sess.HouseholdKey()
	if err != nil {
		return err
	}
	data, _, err := s.loadOrInit(ctx, key)
	if err != nil {
		return err
	}
	if err := fn(&data); err != nil {
		return err
	}
	return s.saveAndQueue(ctx, key, &data)
}

func (s *LedgerService) loadOrInit(ctx context.Context, householdKey string) (core.AppData, bool, error) {
	data, err := s.local.Load(ctx, householdKey)
	if errors.Is(err, store.ErrNotFound) {
		return core.NewAppData(core.PeriodOf(s.now())), true, nil
	}
	if err != nil {
		return core.AppData{}, false, fmt.Errorf("load household %s: %w", householdKey, err)
	}
	return data, false, nil
}

// saveAndQueue persists locally (compare-and-swap, conflicts propagate) and
// queues the mirror push. Outbox and queue failures only log: the periodic
// sweep recovers them.
func (s *LedgerService) saveAndQueue(ctx context.Context, householdKey string, data *core.AppData) error {
	if err := s.local.Save(ctx, householdKey, *data); err != nil {
		return err
	}
	data.Revision++ // Save wrote Revision+1

	s.queuePush(ctx, householdKey, data.Revision)
	return nil
}

func (s *LedgerService) queuePush(ctx context.Context, householdKey string, revision int64) {
	if s.outbox != nil {
		if err := s.outbox.MarkPushPending(ctx, householdKey, revision); err != nil {
			slog.ErrorContext(ctx, "Failed to mark push pending",
				"key", householdKey, "error", err)
		}
	}
	if s.queue != nil {
		if err := s.queue.PublishPush(ctx, householdKey, revision); err != nil {
			slog.ErrorContext(ctx, "Failed to publish push message",
				"key", householdKey, "error", err)
		}
	}
}
