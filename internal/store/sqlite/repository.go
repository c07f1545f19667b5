// Package sqlite is the local offline store: one JSON document per household
// key with a revision column for compare-and-swap, plus a push outbox
// tracking which households still need mirroring to the cloud backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tirelire/internal/core"
	"tirelire/internal/store"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

var _ store.Store = (*Repository)(nil)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, householdKey string) (core.AppData, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM households WHERE key = ?`, householdKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AppData{}, store.ErrNotFound
	}
	if err != nil {
		return core.AppData{}, fmt.Errorf("load household %s: %w", householdKey, err)
	}

	var data core.AppData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return core.AppData{}, fmt.Errorf("decode household %s: %w", householdKey, err)
	}
	return data, nil
}

// Save replaces the aggregate document under compare-and-swap: the incoming
// Revision must match the stored one, the written document carries
// Revision+1.
func (r *Repository) Save(ctx context.Context, householdKey string, data core.AppData) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT revision FROM households WHERE key = ?`, householdKey).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// new household, any starting revision accepted
	case err != nil:
		return fmt.Errorf("read revision for %s: %w", householdKey, err)
	case current != data.Revision:
		return fmt.Errorf("save %s at revision %d (stored %d): %w",
			householdKey, data.Revision, current, store.ErrConflict)
	}

	data.Revision++
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode household %s: %w", householdKey, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO households (key, revision, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			revision = excluded.revision,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		householdKey, data.Revision, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write household %s: %w", householdKey, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	slog.DebugContext(ctx, "Household saved",
		"key", householdKey, "revision", data.Revision)
	return nil
}

func (r *Repository) LoadReferences(ctx context.Context, referenceKey string) ([]core.ReferenceBudget, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM reference_sets WHERE key = ?`, referenceKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load references %s: %w", referenceKey, err)
	}

	var refs []core.ReferenceBudget
	if err := json.Unmarshal([]byte(payload), &refs); err != nil {
		return nil, fmt.Errorf("decode references %s: %w", referenceKey, err)
	}
	return refs, nil
}

func (r *Repository) SaveReferences(ctx context.Context, referenceKey string, refs []core.ReferenceBudget) error {
	payload, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode references %s: %w", referenceKey, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reference_sets (key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		referenceKey, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write references %s: %w", referenceKey, err)
	}
	return nil
}

// PendingPush is one outbox row waiting for a mirror push.
type PendingPush struct {
	HouseholdKey string
	Revision     int64
	Attempts     int64
}

// MarkPushPending upserts the outbox row for a household. A newer revision
// supersedes whatever was queued before; one row per household is enough
// because a push always mirrors the latest local state.
func (r *Repository) MarkPushPending(ctx context.Context, householdKey string, revision int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_outbox (household_key, revision, status, attempts, last_error, updated_at)
		VALUES (?, ?, 'pending', 0, '', ?)
		ON CONFLICT (household_key) DO UPDATE SET
			revision = excluded.revision,
			status = 'pending',
			updated_at = excluded.updated_at`,
		householdKey, revision, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark push pending %s: %w", householdKey, err)
	}
	return nil
}

// PendingPushes returns outbox rows still waiting for a mirror push.
func (r *Repository) PendingPushes(ctx context.Context, limit int) ([]PendingPush, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT household_key, revision, attempts
		FROM push_outbox
		WHERE status = 'pending'
		ORDER BY updated_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending pushes: %w", err)
	}
	defer rows.Close()

	var out []PendingPush
	for rows.Next() {
		var p PendingPush
		if err := rows.Scan(&p.HouseholdKey, &p.Revision, &p.Attempts); err != nil {
			return nil, fmt.Errorf("scan pending push: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPushSynced closes the outbox row up to the given revision. A row
// re-queued with a newer revision in the meantime stays pending.
func (r *Repository) MarkPushSynced(ctx context.Context, householdKey string, revision int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE push_outbox
		SET status = 'synced', last_error = '', updated_at = ?
		WHERE household_key = ? AND revision <= ?`,
		time.Now().UTC(), householdKey, revision)
	if err != nil {
		return fmt.Errorf("mark push synced %s: %w", householdKey, err)
	}
	return nil
}

// MarkPushError records a failed push attempt; the row stays pending so the
// periodic sweep retries it.
func (r *Repository) MarkPushError(ctx context.Context, householdKey string, pushErr error) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE push_outbox
		SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE household_key = ?`,
		pushErr.Error(), time.Now().UTC(), householdKey)
	if err != nil {
		return fmt.Errorf("mark push error %s: %w", householdKey, err)
	}
	return nil
}
