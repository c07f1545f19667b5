package backend

import (
	"context"

	"tirelire/internal/store"
)

// CleanupFunc releases a backend's resources.
type CleanupFunc func() error

// Result bundles a ready store with its optional cleanup.
type Result struct {
	Store   store.Store
	Cleanup CleanupFunc
}

// Factory creates stores from configuration.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*Result, error)
}

// Config holds backend selection and the per-backend settings.
type Config struct {
	Type Type

	// sqlite
	SQLiteDBPath string
}

// Type names a storage backend.
type Type string

const (
	MemoryBackend    Type = "memory"
	SQLiteBackend    Type = "sqlite"
	FirestoreBackend Type = "firestore"
	GitHubBackend    Type = "github"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, FirestoreBackend, GitHubBackend:
		return true
	}
	return false
}
