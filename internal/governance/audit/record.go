// Package audit records every permission check.
//
// Audit records are append-only compliance records. Delivery is
// fire-and-forget: a failing sink is logged and never changes the
// authorization outcome that produced the record.
//
// Import Path: changeflow.io/changeflow/internal/governance/audit
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"changeflow.io/changeflow/internal/domain"
)

// Record is one permission check.
type Record struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	ActorID    string            `json:"actor_id"`
	Role       domain.Role       `json:"role"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Action     string            `json:"action"`
	Context    map[string]any    `json:"context,omitempty"`
	Allowed    bool              `json:"allowed"`
	Reasons    []string          `json:"reasons,omitempty"`
}

// Sink persists audit records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "audit-" + uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
