// Package backend builds storage backends from configuration: memory and
// sqlite for the local side, firestore and github as cloud mirrors.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	fsstore "tirelire/internal/store/firestore"
	ghstore "tirelire/internal/store/github"
	"tirelire/internal/store/memory"
	"tirelire/internal/store/sqlite"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*Result, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := sqlite.NewRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		f.logger.Info("Initialized sqlite store", "db_path", config.SQLiteDBPath)
		return &Result{Store: repo, Cleanup: repo.Close}, nil

	case FirestoreBackend:
		st, err := fsstore.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize firestore mirror: %w", err)
		}
		f.logger.Info("Initialized firestore mirror")
		return &Result{Store: st}, nil

	case GitHubBackend:
		st, err := ghstore.NewFromEnv()
		if err != nil {
			return nil, fmt.Errorf("initialize github mirror: %w", err)
		}
		f.logger.Info("Initialized github mirror")
		return &Result{Store: st}, nil

	default:
		f.logger.Info("Initialized memory store")
		return &Result{Store: memory.New()}, nil
	}
}
