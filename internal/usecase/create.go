package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/authz"
	"changeflow.io/changeflow/internal/governance/permission"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/repository"
)

// Link fields between entities.
const (
	FieldECOID = "ecoId"
	FieldECNID = "ecnId"
)

// reservedKeys are owned by the store and the workflow, never by create input.
var reservedKeys = []string{domain.FieldStatus, domain.FieldSubmitterID, domain.FieldAssigneeID}

// Create stores a new DRAFT entity submitted by actor after the CREATE
// permission and the creation rules pass.
func (uc *ChangeUseCase) Create(
	ctx context.Context,
	actor *domain.Actor,
	entityType domain.EntityType,
	fields domain.Fields,
) (*ChangeOutput, error) {
	if actor == nil {
		return nil, apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required")
	}
	if !uc.authz.CheckPermission(ctx, actor, entityType, nil, permission.ActionCreate, "") {
		return nil, apperrors.ErrPermissionDenied([]string{
			fmt.Sprintf("Role %s is not permitted to CREATE this %s", actor.Role, entityType),
		})
	}

	data := fields.Clone()
	if data == nil {
		data = domain.Fields{}
	}
	for _, k := range reservedKeys {
		delete(data, k)
	}

	result := uc.creationRules(entityType, data, actor)
	if !result.IsValid {
		return nil, apperrors.ErrValidationFailed(result.Errors, result.Warnings)
	}

	created, err := uc.store.CreateEntity(ctx, &domain.Entity{
		Type:                entityType,
		Status:              domain.ECRDraft,
		SubmitterID:         actor.ID,
		SubmitterDepartment: actor.Department,
		OrganizationID:      actor.OrganizationID,
		Fields:              data,
	})
	if err != nil {
		return nil, translateCreateError(err)
	}

	uc.publishCreated(ctx, actor, created)
	logger.Info("Change entity created",
		zap.String("entity_type", string(created.Type)),
		zap.String("entity_id", created.ID),
		zap.String("actor_id", actor.ID),
	)
	return &ChangeOutput{Entity: created, Warnings: result.Warnings, DroppedFields: []string{}}, nil
}

func (uc *ChangeUseCase) creationRules(entityType domain.EntityType, data domain.Fields, actor *domain.Actor) domain.ValidationResult {
	v := uc.authz.Validator()
	rctx := authz.BuildRuleContext(actor)
	switch entityType {
	case domain.EntityECR:
		return v.ValidateECRCreation(data, rctx)
	case domain.EntityECO:
		return v.ValidateECOCreation(data, rctx)
	case domain.EntityECN:
		return v.ValidateECNCreation(data, rctx)
	default:
		return domain.NewValidationResult([]string{fmt.Sprintf("Unknown entity type %s", entityType)}, nil)
	}
}

// GenerateECN creates the change notice of a COMPLETED change order. The
// order is linked first with a version check so two concurrent requests
// cannot both generate a notice; the link is removed again when the notice
// cannot be stored.
func (uc *ChangeUseCase) GenerateECN(
	ctx context.Context,
	actor *domain.Actor,
	ecoID string,
	fields domain.Fields,
) (*ChangeOutput, error) {
	if actor == nil {
		return nil, apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required")
	}
	eco, err := uc.authz.LoadEntity(ctx, domain.EntityECO, ecoID)
	if err != nil {
		return nil, translateLoadError(err, domain.EntityECO, ecoID)
	}
	if !uc.authz.CheckPermission(ctx, actor, domain.EntityECO, eco, permission.ActionRead, "") {
		return nil, apperrors.ErrPermissionDenied([]string{
			fmt.Sprintf("Role %s is not permitted to READ this %s", actor.Role, domain.EntityECO),
		})
	}
	if !uc.authz.CheckPermission(ctx, actor, domain.EntityECN, nil, permission.ActionCreate, "") {
		return nil, apperrors.ErrPermissionDenied([]string{
			fmt.Sprintf("Role %s is not permitted to CREATE this %s", actor.Role, domain.EntityECN),
		})
	}

	data := fields.Clone()
	if data == nil {
		data = domain.Fields{}
	}
	for _, k := range reservedKeys {
		delete(data, k)
	}
	data[FieldECOID] = eco.ID

	v := uc.authz.Validator()
	result := domain.Combine(
		v.ValidateECNGeneration(eco.Snapshot(), eco.Fields.Truthy(FieldECNID)),
		v.ValidateECNCreation(data, authz.BuildRuleContext(actor)),
	)
	if !result.IsValid {
		return nil, apperrors.ErrValidationFailed(result.Errors, result.Warnings)
	}

	ecnID, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to generate id", http.StatusInternalServerError)
	}

	linked, err := uc.store.UpdateFields(ctx, domain.EntityECO, eco.ID, eco.Version, domain.Fields{FieldECNID: ecnID.String()})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.ErrConcurrentModification(string(domain.EntityECO), eco.ID)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to link change order", http.StatusInternalServerError)
	}

	created, err := uc.store.CreateEntity(ctx, &domain.Entity{
		ID:                  ecnID.String(),
		Type:                domain.EntityECN,
		Status:              domain.ECNDraft,
		SubmitterID:         actor.ID,
		SubmitterDepartment: actor.Department,
		OrganizationID:      actor.OrganizationID,
		Fields:              data,
	})
	if err != nil {
		uc.unlinkECN(ctx, linked, ecnID.String())
		return nil, translateCreateError(err)
	}

	uc.publishCreated(ctx, actor, created)
	return &ChangeOutput{Entity: created, Warnings: result.Warnings, DroppedFields: []string{}}, nil
}

// unlinkECN clears the link set on eco when its notice could not be
// created. The version check leaves a newer write untouched.
func (uc *ChangeUseCase) unlinkECN(ctx context.Context, eco *domain.Entity, ecnID string) {
	_, err := uc.store.UpdateFields(context.WithoutCancel(ctx), domain.EntityECO, eco.ID, eco.Version,
		domain.Fields{FieldECNID: nil})
	if err != nil {
		logger.Error("ECO linked to an ECN that could not be created",
			zap.String("eco_id", eco.ID),
			zap.String("ecn_id", ecnID),
			zap.Error(err),
		)
		return
	}
	logger.Warn("ECN creation failed, change order unlinked",
		zap.String("eco_id", eco.ID),
		zap.String("ecn_id", ecnID),
	)
}

func (uc *ChangeUseCase) publishCreated(ctx context.Context, actor *domain.Actor, created *domain.Entity) {
	if uc.events == nil {
		return
	}
	_ = uc.events.Dispatch(ctx, &domain.DomainEvent{
		EventID:    newEventID(),
		EventType:  domain.EventEntityCreated,
		EntityType: created.Type,
		EntityID:   created.ID,
		To:         created.Status,
		Fields:     created.Fields.Keys(),
		ActorID:    actor.ID,
		Version:    created.Version,
		CreatedAt:  uc.now().UTC(),
	})
}

func translateCreateError(err error) error {
	if errors.Is(err, repository.ErrExists) {
		return apperrors.Conflict(apperrors.CodeEntityExists, "entity already exists")
	}
	return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create entity", http.StatusInternalServerError)
}
