// Package store defines the persistence port for the whole-aggregate
// load/save contract and its sentinel errors.
package store

import (
	"context"
	"errors"

	"tirelire/internal/core"
)

var (
	// ErrNotFound is returned when no document exists for a key.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned by stores that enforce compare-and-swap when
	// the saved aggregate's Revision no longer matches the stored one.
	ErrConflict = errors.New("revision conflict")
)

// Store persists whole aggregates, one document per household key, plus
// reference budget sets under their own key namespace.
//
// Local stores (memory, sqlite) enforce compare-and-swap: Save succeeds only
// when data.Revision equals the stored revision and writes Revision+1.
// Mirror stores (firestore, github) replace the document unconditionally,
// which bounds the remote consistency model to last-write-wins.
type Store interface {
	Load(ctx context.Context, householdKey string) (core.AppData, error)
	Save(ctx context.Context, householdKey string, data core.AppData) error
	LoadReferences(ctx context.Context, referenceKey string) ([]core.ReferenceBudget, error)
	SaveReferences(ctx context.Context, referenceKey string, refs []core.ReferenceBudget) error
}
