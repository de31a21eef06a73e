// Package authz composes the permission matrix, the workflow machine and the
// business rules into one decision per state-changing request.
//
// Every permission check is written to the audit log. Audit delivery never
// influences the decision.
//
// Import Path: changeflow.io/changeflow/internal/governance/authz
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/audit"
	"changeflow.io/changeflow/internal/governance/permission"
	"changeflow.io/changeflow/internal/governance/rules"
	"changeflow.io/changeflow/internal/governance/workflow"
	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/repository"
)

// ErrNoActor is returned when a request carries no resolved identity.
var ErrNoActor = errors.New("no actor on request")

// EntityLoader reads an entity snapshot. A missing entity is reported as
// repository.ErrNotFound.
type EntityLoader interface {
	LoadEntity(ctx context.Context, entityType domain.EntityType, id string) (*domain.Entity, error)
}

// RuleFunc is an extra business rule evaluated against the entity with the
// request's changes applied.
type RuleFunc func(entity *domain.Entity, rctx rules.Context) domain.ValidationResult

// Request is a state-changing request.
type Request struct {
	Actor      *domain.Actor
	EntityType domain.EntityType
	EntityID   string
	Action     permission.Action
	// TargetStatus is required when Action is TRANSITION.
	TargetStatus domain.Status
	Changes      domain.Fields
	// Stamped holds server-owned values such as the approver. They bypass the
	// UPDATE allowlist and replace any caller value for the same key.
	Stamped domain.Fields
	Rules   []RuleFunc
}

// Decision is the merged report of every component.
type Decision struct {
	Allowed        bool                 `json:"allowed"`
	Errors         []string             `json:"errors"`
	Warnings       []string             `json:"warnings"`
	AllowedChanges domain.Fields        `json:"allowedChanges"`
	DroppedFields  []string             `json:"droppedFields"`
	Rule           *workflow.Transition `json:"rule,omitempty"`
	Entity         *domain.Entity       `json:"-"`
}

// Authorizer runs permission, workflow and rule checks.
type Authorizer struct {
	loader    EntityLoader
	matrix    *permission.Matrix
	machine   *workflow.Machine
	validator *rules.Validator
	audit     *audit.Logger
}

// NewAuthorizer wires the three components to an entity loader and an
// audit logger.
func NewAuthorizer(
	loader EntityLoader,
	matrix *permission.Matrix,
	machine *workflow.Machine,
	validator *rules.Validator,
	auditLogger *audit.Logger,
) *Authorizer {
	return &Authorizer{
		loader:    loader,
		matrix:    matrix,
		machine:   machine,
		validator: validator,
		audit:     auditLogger,
	}
}

// Matrix returns the permission matrix.
func (a *Authorizer) Matrix() *permission.Matrix { return a.matrix }

// Machine returns the workflow machine.
func (a *Authorizer) Machine() *workflow.Machine { return a.machine }

// Validator returns the business rule validator.
func (a *Authorizer) Validator() *rules.Validator { return a.validator }

// BuildPermissionContext derives the per-request facts for actor on entity.
// A nil entity yields a nil context, which means a coarse check.
func BuildPermissionContext(actor *domain.Actor, entity *domain.Entity, field string) *permission.Context {
	if entity == nil {
		return nil
	}
	pctx := &permission.Context{
		Ownership: &permission.Ownership{IsOwner: actor != nil && entity.IsOwnedBy(actor.ID)},
		Status:    &permission.StatusFact{Current: entity.Status},
	}
	if actor != nil {
		pctx.Department = &permission.DepartmentFact{User: actor.Department, Entity: entity.Department()}
	}
	if field != "" {
		pctx.Field = &permission.FieldFact{Name: field}
	}
	return pctx
}

// BuildRuleContext derives the business rule context for actor.
func BuildRuleContext(actor *domain.Actor) rules.Context {
	return rules.ContextFor(actor)
}

// LoadEntity reads an entity through the configured loader.
func (a *Authorizer) LoadEntity(ctx context.Context, entityType domain.EntityType, id string) (*domain.Entity, error) {
	e, err := a.loader.LoadEntity(ctx, entityType, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load %s %s: %w", entityType, id, err)
	}
	return e, nil
}

// CheckPermission evaluates and audits one matrix check. entity may be nil
// for actions that have no target yet, such as CREATE.
func (a *Authorizer) CheckPermission(
	ctx context.Context,
	actor *domain.Actor,
	entityType domain.EntityType,
	entity *domain.Entity,
	action permission.Action,
	field string,
) bool {
	if actor == nil {
		return false
	}
	pctx := BuildPermissionContext(actor, entity, field)
	allowed := a.matrix.HasPermission(actor.Role, entityType, action, pctx)

	rec := audit.Record{
		ActorID:    actor.ID,
		Role:       actor.Role,
		EntityType: entityType,
		Action:     string(action),
		Context:    auditContext(pctx, field),
		Allowed:    allowed,
	}
	if entity != nil {
		rec.EntityID = entity.ID
	}
	if !allowed {
		rec.Reasons = []string{permissionDeniedMessage(actor.Role, action, entityType)}
	}
	a.audit.Log(ctx, rec)

	logger.Debug("Permission checked",
		zap.String("actor_id", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", rec.EntityID),
		zap.String("action", string(action)),
		zap.Bool("allowed", allowed),
	)
	return allowed
}

func auditContext(pctx *permission.Context, field string) map[string]any {
	if pctx == nil {
		return map[string]any{"coarse": true}
	}
	out := map[string]any{
		"is_owner": pctx.Ownership.IsOwner,
		"status":   string(pctx.Status.Current),
	}
	if pctx.Department != nil {
		out["user_department"] = pctx.Department.User
		out["entity_department"] = pctx.Department.Entity
	}
	if field != "" {
		out["field"] = field
	}
	return out
}

func permissionDeniedMessage(role domain.Role, action permission.Action, entityType domain.EntityType) string {
	return fmt.Sprintf("Role %s is not permitted to %s this %s", role, action, entityType)
}

// Authorize loads the entity and runs every check for req. The returned
// error is reserved for a missing actor, a missing entity or a loader
// failure; denials are reported in the Decision.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (*Decision, error) {
	if req.Actor == nil {
		return nil, ErrNoActor
	}
	entity, err := a.LoadEntity(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}

	var (
		results  []domain.ValidationResult
		decision = &Decision{Entity: entity, AllowedChanges: domain.Fields{}, DroppedFields: []string{}}
		rctx     = BuildRuleContext(req.Actor)
	)
	deny := func(msg string) {
		results = append(results, domain.NewValidationResult([]string{msg}, nil))
	}

	if !a.CheckPermission(ctx, req.Actor, req.EntityType, entity, req.Action, "") {
		deny(permissionDeniedMessage(req.Actor.Role, req.Action, req.EntityType))
	}

	if req.Action == permission.ActionUpdate && req.Changes.Has(domain.FieldStatus) {
		deny("Status can only be changed through a transition")
	}

	if len(req.Changes) > 0 {
		changes := req.Changes.Clone()
		delete(changes, domain.FieldStatus)
		for k := range req.Stamped {
			delete(changes, k)
		}
		filtered := a.filterChanges(ctx, req.Actor, entity, changes)
		decision.AllowedChanges = filtered.Allowed
		decision.DroppedFields = filtered.Dropped
		if len(filtered.Dropped) > 0 {
			results = append(results, domain.NewValidationResult(nil, []string{
				fmt.Sprintf("Fields not writable by %s were ignored: %s", req.Actor.Role, strings.Join(filtered.Dropped, ", ")),
			}))
		}
		if req.Action == permission.ActionUpdate && len(filtered.Allowed) == 0 && len(changes) > 0 {
			deny("No writable fields in request")
		}
	}

	for k, v := range req.Stamped {
		decision.AllowedChanges[k] = v
	}

	proposed := repository.ApplyChanges(entity, decision.AllowedChanges)

	if req.Action == permission.ActionTransition {
		tr := a.machine.ValidateTransition(req.EntityType, entity.Status, req.TargetStatus,
			req.Actor.Role, proposed.Snapshot(), req.Actor)
		decision.Rule = tr.Rule
		results = append(results, domain.NewValidationResult(tr.Errors, nil))
		if tr.Rule != nil {
			results = append(results, a.validator.ValidateStatusTransition(
				req.EntityType, entity.Status, req.TargetStatus, proposed.Snapshot(), rctx))
		}
	}

	for _, rule := range req.Rules {
		results = append(results, rule(proposed, rctx))
	}

	merged := domain.Combine(results...)
	decision.Allowed = merged.IsValid
	decision.Errors = merged.Errors
	decision.Warnings = merged.Warnings

	if !decision.Allowed {
		logger.Info("Request denied",
			zap.String("actor_id", req.Actor.ID),
			zap.String("entity_type", string(req.EntityType)),
			zap.String("entity_id", req.EntityID),
			zap.String("action", string(req.Action)),
			zap.Strings("errors", decision.Errors),
		)
	}
	return decision, nil
}

// filterChanges applies the UPDATE allowlist, then drops everything when the
// UPDATE ownership or status conditions fail for this entity.
func (a *Authorizer) filterChanges(
	ctx context.Context,
	actor *domain.Actor,
	entity *domain.Entity,
	changes domain.Fields,
) permission.FieldFilterResult {
	filtered := a.matrix.FilterAllowedFields(actor.Role, entity.Type, changes)
	if len(filtered.Allowed) == 0 {
		return filtered
	}
	if a.CheckPermission(ctx, actor, entity.Type, entity, permission.ActionUpdate, "") {
		return filtered
	}
	// The allowlist passed but ownership or status conditions did not.
	return permission.FieldFilterResult{Allowed: domain.Fields{}, Dropped: changes.Keys()}
}
