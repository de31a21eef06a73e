// Package repository provides the entity store the change core reads from
// and writes to.
//
// Updates are compare-and-swap on the entity version so a transition that
// was validated against a stale snapshot is never applied.
//
// Import Path: changeflow.io/changeflow/internal/repository
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"changeflow.io/changeflow/internal/domain"
)

var (
	// ErrNotFound means no entity has the requested type and id.
	ErrNotFound = errors.New("entity not found")
	// ErrConflict means the stored version differs from the expected one.
	ErrConflict = errors.New("entity version conflict")
	// ErrExists means an entity with the same type and id is already stored.
	ErrExists = errors.New("entity already exists")
)

// Store loads and mutates change entities.
type Store interface {
	LoadEntity(ctx context.Context, entityType domain.EntityType, id string) (*domain.Entity, error)
	// UpdateFields applies changes when the stored version equals
	// expectedVersion and returns the updated entity.
	UpdateFields(ctx context.Context, entityType domain.EntityType, id string, expectedVersion int64, changes domain.Fields) (*domain.Entity, error)
	CreateEntity(ctx context.Context, entity *domain.Entity) (*domain.Entity, error)
}

// ApplyChanges returns a copy of e with changes merged in and the version
// bumped. The well-known keys status, submitterId and assigneeId update the
// matching columns; a nil value removes a field.
func ApplyChanges(e *domain.Entity, changes domain.Fields) *domain.Entity {
	out := *e
	out.Fields = e.Fields.Clone()
	if out.Fields == nil {
		out.Fields = domain.Fields{}
	}
	for k, v := range changes {
		switch k {
		case domain.FieldStatus:
			if s, ok := v.(string); ok {
				out.Status = domain.Status(s)
			}
		case domain.FieldSubmitterID:
			out.SubmitterID, _ = v.(string)
		case domain.FieldAssigneeID:
			out.AssigneeID, _ = v.(string)
		default:
			if v == nil {
				delete(out.Fields, k)
				continue
			}
			out.Fields[k] = v
		}
	}
	out.Version = e.Version + 1
	return &out
}

// prepareNew validates a new entity and fills id and version.
func prepareNew(e *domain.Entity) (*domain.Entity, error) {
	if e == nil {
		return nil, fmt.Errorf("create entity: nil entity")
	}
	if _, err := domain.ParseEntityType(string(e.Type)); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	out := *e
	out.Fields = e.Fields.Clone()
	if out.Fields == nil {
		out.Fields = domain.Fields{}
	}
	if out.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate entity id: %w", err)
		}
		out.ID = id.String()
	}
	if out.Status == "" {
		out.Status = domain.ECRDraft
	}
	if !domain.HasStatus(out.Type, out.Status) {
		return nil, fmt.Errorf("create entity: status %s is not a %s status", out.Status, out.Type)
	}
	out.Version = 1
	return &out, nil
}
