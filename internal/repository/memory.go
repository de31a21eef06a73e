package repository

import (
	"context"
	"sync"

	"changeflow.io/changeflow/internal/domain"
)

type entityKey struct {
	entityType domain.EntityType
	id         string
}

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[entityKey]*domain.Entity
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[entityKey]*domain.Entity)}
}

func clone(e *domain.Entity) *domain.Entity {
	out := *e
	out.Fields = e.Fields.Clone()
	return &out
}

// LoadEntity implements Store.
func (s *MemoryStore) LoadEntity(_ context.Context, entityType domain.EntityType, id string) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[entityKey{entityType, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

// UpdateFields implements Store.
func (s *MemoryStore) UpdateFields(
	_ context.Context,
	entityType domain.EntityType,
	id string,
	expectedVersion int64,
	changes domain.Fields,
) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{entityType, id}
	current, ok := s.entities[key]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ErrConflict
	}
	updated := ApplyChanges(current, changes)
	s.entities[key] = updated
	return clone(updated), nil
}

// CreateEntity implements Store.
func (s *MemoryStore) CreateEntity(_ context.Context, entity *domain.Entity) (*domain.Entity, error) {
	e, err := prepareNew(entity)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{e.Type, e.ID}
	if _, exists := s.entities[key]; exists {
		return nil, ErrExists
	}
	s.entities[key] = e
	return clone(e), nil
}
