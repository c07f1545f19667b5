// Package worker mirrors household aggregates to the remote backend. It is
// driven two ways: push messages from the AMQP queue, and a periodic poll of
// the outbox that recovers pushes whose message was lost.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tirelire/internal/amqp"
	"tirelire/internal/session"
	"tirelire/internal/store"
	"tirelire/internal/store/sqlite"
)

type SyncWorker struct {
	repo      *sqlite.Repository
	mirror    store.Store
	batchSize int
	interval  time.Duration
}

func NewSyncWorker(repo *sqlite.Repository, mirror store.Store, batchSize int, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		repo:      repo,
		mirror:    mirror,
		batchSize: batchSize,
		interval:  interval,
	}
}

// HandlePush mirrors one household in response to a queue message. Errors
// are recorded on the outbox row and returned, so the delivery is requeued.
func (w *SyncWorker) HandlePush(ctx context.Context, msg *amqp.PushMessage) error {
	revision, err := w.pushHousehold(ctx, msg.HouseholdKey, msg.Revision)
	if err != nil {
		if markErr := w.repo.MarkPushError(ctx, msg.HouseholdKey, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to record push error",
				"household_key", msg.HouseholdKey, "error", markErr)
		}
		return err
	}
	slog.InfoContext(ctx, "Mirrored household",
		"household_key", msg.HouseholdKey,
		"revision", revision,
		"trigger", "queue")
	return nil
}

// Run sweeps the outbox once at startup, then polls it on the configured
// interval until ctx is cancelled. The sweep is what recovers pushes whose
// queue message never arrived.
func (w *SyncWorker) Run(ctx context.Context) error {
	if n, err := w.ProcessPending(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup outbox sweep failed", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Startup outbox sweep complete", "pushed", n)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Outbox poll failed", "error", err)
			}
		}
	}
}

// ProcessPending mirrors up to batchSize households with outstanding pushes.
// Per-household failures are recorded and skipped so one bad household does
// not starve the rest. Returns how many households were mirrored.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.repo.PendingPushes(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending pushes: %w", err)
	}

	pushed := 0
	for _, p := range pending {
		revision, err := w.pushHousehold(ctx, p.HouseholdKey, p.Revision)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to mirror household",
				"household_key", p.HouseholdKey, "error", err)
			if markErr := w.repo.MarkPushError(ctx, p.HouseholdKey, err); markErr != nil {
				slog.ErrorContext(ctx, "Failed to record push error",
					"household_key", p.HouseholdKey, "error", markErr)
			}
			continue
		}
		pushed++
		slog.InfoContext(ctx, "Mirrored household",
			"household_key", p.HouseholdKey,
			"revision", revision,
			"trigger", "poll")
	}
	return pushed, nil
}

// pushHousehold copies the current local aggregate to the mirror and marks
// the outbox row synced at the revision it actually read. A household that
// vanished locally settles its outbox row at the queued revision instead of
// requeueing forever.
func (w *SyncWorker) pushHousehold(ctx context.Context, householdKey string, queuedRevision int64) (int64, error) {
	data, err := w.repo.Load(ctx, householdKey)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "Pending push for missing household, clearing",
			"household_key", householdKey)
		if err := w.repo.MarkPushSynced(ctx, householdKey, queuedRevision); err != nil {
			return 0, fmt.Errorf("clear orphan push: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load household: %w", err)
	}

	if err := w.mirror.Save(ctx, householdKey, data); err != nil {
		return 0, fmt.Errorf("save to mirror: %w", err)
	}

	// The reference set travels with the household so a restore from the
	// mirror keeps its templates.
	refKey := session.ReferenceKeyFor(householdKey)
	refs, err := w.repo.LoadReferences(ctx, refKey)
	switch {
	case err == nil && len(refs) > 0:
		if err := w.mirror.SaveReferences(ctx, refKey, refs); err != nil {
			return 0, fmt.Errorf("save references to mirror: %w", err)
		}
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("load references %s: %w", refKey, err)
	}

	if err := w.repo.MarkPushSynced(ctx, householdKey, data.Revision); err != nil {
		return 0, fmt.Errorf("mark push synced: %w", err)
	}
	return data.Revision, nil
}
