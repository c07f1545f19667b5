// Package memory is an in-memory Store used in tests and for local
// development without a database.
package memory

import (
	"context"
	"sync"

	"tirelire/internal/core"
	"tirelire/internal/store"
)

type Store struct {
	mu         sync.RWMutex
	households map[string]core.AppData
	references map[string][]core.ReferenceBudget
}

func New() *Store {
	return &Store{
		households: make(map[string]core.AppData),
		references: make(map[string][]core.ReferenceBudget),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Load(_ context.Context, householdKey string) (core.AppData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.households[householdKey]
	if !ok {
		return core.AppData{}, store.ErrNotFound
	}
	return data.Clone(), nil
}

// Save enforces compare-and-swap: data.Revision must match the stored
// revision (zero for a new key) and is bumped on success.
func (s *Store) Save(_ context.Context, householdKey string, data core.AppData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.households[householdKey]; ok && cur.Revision != data.Revision {
		return store.ErrConflict
	}
	data.Revision++
	s.households[householdKey] = data.Clone()
	return nil
}

func (s *Store) LoadReferences(_ context.Context, referenceKey string) ([]core.ReferenceBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs, ok := s.references[referenceKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]core.ReferenceBudget(nil), refs...), nil
}

func (s *Store) SaveReferences(_ context.Context, referenceKey string, refs []core.ReferenceBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.references[referenceKey] = append([]core.ReferenceBudget(nil), refs...)
	return nil
}
