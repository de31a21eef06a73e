// Package usecase provides application use cases.
//
// Use cases are reusable across HTTP and CLI. They own the read-validate-write
// cycle: authorize against a snapshot, apply with a version compare-and-swap,
// and re-validate once when the snapshot turned out to be stale.
//
// Import Path: changeflow.io/changeflow/internal/usecase
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/authz"
	"changeflow.io/changeflow/internal/governance/permission"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/repository"
)

// maxAttempts bounds the authorize-then-apply loop: the first try plus one
// re-validation after a version conflict.
const maxAttempts = 2

// ChangeOutput is the result of a successful mutation.
type ChangeOutput struct {
	Entity        *domain.Entity `json:"entity"`
	Warnings      []string       `json:"warnings"`
	DroppedFields []string       `json:"droppedFields"`
}

// ChangeUseCase applies authorized changes to ECRs, ECOs and ECNs.
type ChangeUseCase struct {
	store  repository.Store
	authz  *authz.Authorizer
	events *domain.EventDispatcher
	now    func() time.Time
}

// NewChangeUseCase creates a new ChangeUseCase.
func NewChangeUseCase(store repository.Store, authorizer *authz.Authorizer, events *domain.EventDispatcher) *ChangeUseCase {
	return &ChangeUseCase{
		store:  store,
		authz:  authorizer,
		events: events,
		now:    time.Now,
	}
}

// Transition moves an entity to status to, writing the permitted subset of
// changes in the same update.
func (uc *ChangeUseCase) Transition(
	ctx context.Context,
	actor *domain.Actor,
	entityType domain.EntityType,
	id string,
	to domain.Status,
	changes domain.Fields,
) (*ChangeOutput, error) {
	req := authz.Request{
		Actor:        actor,
		EntityType:   entityType,
		EntityID:     id,
		Action:       permission.ActionTransition,
		TargetStatus: to,
		Changes:      changes,
		Stamped:      uc.stampedFields(actor, entityType, to),
		Rules:        RulesForTransition(uc.authz.Validator(), entityType, to),
	}
	return uc.apply(ctx, req, func(d *authz.Decision) domain.Fields {
		write := d.AllowedChanges.Clone()
		write[domain.FieldStatus] = string(to)
		return write
	})
}

// stampedFields returns the values the server records when entering to:
// the approver on APPROVED and the distribution time on ECN DISTRIBUTED.
func (uc *ChangeUseCase) stampedFields(actor *domain.Actor, entityType domain.EntityType, to domain.Status) domain.Fields {
	if actor == nil {
		return nil
	}
	now := uc.now().UTC().Format(time.RFC3339)
	switch {
	case to == domain.ECRApproved:
		// ECR, ECO and ECN share the APPROVED status name.
		return domain.Fields{domain.FieldApproverID: actor.ID, domain.FieldApprovedAt: now}
	case entityType == domain.EntityECN && to == domain.ECNDistributed:
		return domain.Fields{domain.FieldDistributedAt: now}
	default:
		return nil
	}
}

// Update writes the permitted subset of changes without a status change.
func (uc *ChangeUseCase) Update(
	ctx context.Context,
	actor *domain.Actor,
	entityType domain.EntityType,
	id string,
	changes domain.Fields,
) (*ChangeOutput, error) {
	req := authz.Request{
		Actor:      actor,
		EntityType: entityType,
		EntityID:   id,
		Action:     permission.ActionUpdate,
		Changes:    changes,
	}
	return uc.apply(ctx, req, func(d *authz.Decision) domain.Fields {
		return d.AllowedChanges
	})
}

func (uc *ChangeUseCase) apply(
	ctx context.Context,
	req authz.Request,
	writeSet func(*authz.Decision) domain.Fields,
) (*ChangeOutput, error) {
	for attempt := 1; ; attempt++ {
		decision, err := uc.authz.Authorize(ctx, req)
		if err != nil {
			return nil, translateLoadError(err, req.EntityType, req.EntityID)
		}
		if !decision.Allowed {
			return nil, denial(req.Action, decision)
		}

		from := decision.Entity.Status
		updated, err := uc.store.UpdateFields(ctx, req.EntityType, req.EntityID, decision.Entity.Version, writeSet(decision))
		switch {
		case err == nil:
			uc.publish(ctx, req, from, updated, decision)
			return &ChangeOutput{
				Entity:        updated,
				Warnings:      decision.Warnings,
				DroppedFields: decision.DroppedFields,
			}, nil
		case errors.Is(err, repository.ErrConflict):
			if attempt >= maxAttempts {
				logger.Warn("Concurrent modification after re-validation",
					zap.String("entity_type", string(req.EntityType)),
					zap.String("entity_id", req.EntityID),
					zap.String("actor_id", req.Actor.ID),
				)
				return nil, apperrors.ErrConcurrentModification(string(req.EntityType), req.EntityID)
			}
			logger.Debug("Version conflict, re-validating",
				zap.String("entity_type", string(req.EntityType)),
				zap.String("entity_id", req.EntityID),
			)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.ErrEntityNotFound(string(req.EntityType), req.EntityID)
		default:
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to apply change", http.StatusInternalServerError)
		}
	}
}

func (uc *ChangeUseCase) publish(
	ctx context.Context,
	req authz.Request,
	from domain.Status,
	updated *domain.Entity,
	decision *authz.Decision,
) {
	if uc.events == nil {
		return
	}
	event := &domain.DomainEvent{
		EventID:    newEventID(),
		EventType:  domain.EventFieldsUpdated,
		EntityType: updated.Type,
		EntityID:   updated.ID,
		Fields:     decision.AllowedChanges.Keys(),
		ActorID:    req.Actor.ID,
		Version:    updated.Version,
		CreatedAt:  uc.now().UTC(),
	}
	if req.Action == permission.ActionTransition {
		event.EventType = domain.EventStatusChanged
		event.From = from
		event.To = updated.Status
	}
	// The change is committed; a failing handler cannot undo it.
	_ = uc.events.Dispatch(ctx, event)
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "event-" + uuid.New().String()
	}
	return fmt.Sprintf("event-%s", id.String())
}

func translateLoadError(err error, entityType domain.EntityType, id string) error {
	switch {
	case errors.Is(err, authz.ErrNoActor):
		return apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.ErrEntityNotFound(string(entityType), id)
	default:
		logger.Error("Failed to load entity",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", id),
			zap.Error(err),
		)
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to load entity", http.StatusInternalServerError)
	}
}

func denial(action permission.Action, d *authz.Decision) error {
	if action == permission.ActionTransition {
		return apperrors.ErrTransitionDenied(d.Errors).WithWarnings(d.Warnings)
	}
	return apperrors.ErrPermissionDenied(d.Errors).WithWarnings(d.Warnings)
}
