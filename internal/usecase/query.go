package usecase

import (
	"context"
	"fmt"
	"strings"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/authz"
	"changeflow.io/changeflow/internal/governance/permission"
	"changeflow.io/changeflow/internal/governance/workflow"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
)

// Capabilities is what an actor may do with one entity right now.
type Capabilities struct {
	EntityType     domain.EntityType     `json:"entityType"`
	EntityID       string                `json:"entityId"`
	Status         domain.Status         `json:"status"`
	Version        int64                 `json:"version"`
	AllowedActions []permission.Action   `json:"allowedActions"`
	NextStatuses   []workflow.NextStatus `json:"nextStatuses"`
}

// Capabilities loads the entity and reports the actor's allowed actions and
// next statuses. The actor needs READ on the entity.
func (uc *ChangeUseCase) Capabilities(
	ctx context.Context,
	actor *domain.Actor,
	entityType domain.EntityType,
	id string,
) (*Capabilities, error) {
	if actor == nil {
		return nil, apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required")
	}
	entity, err := uc.authz.LoadEntity(ctx, entityType, id)
	if err != nil {
		return nil, translateLoadError(err, entityType, id)
	}
	if !uc.authz.CheckPermission(ctx, actor, entityType, entity, permission.ActionRead, "") {
		return nil, apperrors.ErrPermissionDenied([]string{
			fmt.Sprintf("Role %s is not permitted to READ this %s", actor.Role, entityType),
		})
	}

	pctx := authz.BuildPermissionContext(actor, entity, "")
	out := &Capabilities{
		EntityType:     entityType,
		EntityID:       entity.ID,
		Status:         entity.Status,
		Version:        entity.Version,
		AllowedActions: uc.authz.Matrix().AllowedActions(actor.Role, entityType, pctx),
		NextStatuses:   []workflow.NextStatus{},
	}
	// Edges are only offered to actors who may transition at all.
	if uc.authz.Matrix().HasPermission(actor.Role, entityType, permission.ActionTransition, pctx) {
		out.NextStatuses = uc.authz.Machine().NextStatuses(entityType, entity.Status, actor.Role)
	}
	return out, nil
}

// CheckAcknowledgment evaluates a recipient's acknowledgment of the stored
// notice ecnID, using the distribution time recorded by the server. The
// actor needs READ on the notice.
func (uc *ChangeUseCase) CheckAcknowledgment(
	ctx context.Context,
	actor *domain.Actor,
	ecnID string,
	comments string,
) (domain.ValidationResult, error) {
	if actor == nil {
		return domain.ValidationResult{}, apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required")
	}
	ecn, err := uc.authz.LoadEntity(ctx, domain.EntityECN, ecnID)
	if err != nil {
		return domain.ValidationResult{}, translateLoadError(err, domain.EntityECN, ecnID)
	}
	if !uc.authz.CheckPermission(ctx, actor, domain.EntityECN, ecn, permission.ActionRead, "") {
		return domain.ValidationResult{}, apperrors.ErrPermissionDenied([]string{
			fmt.Sprintf("Role %s is not permitted to READ this %s", actor.Role, domain.EntityECN),
		})
	}
	return uc.authz.Validator().ValidateECNAcknowledgment(ecn.Snapshot(), comments, authz.BuildRuleContext(actor)), nil
}

// Validation actions accepted by ValidateAction, per entity type.
var validationActions = map[domain.EntityType][]string{
	domain.EntityECR: {"create", "approve", "reject"},
	domain.EntityECO: {"create", "complete"},
	domain.EntityECN: {"create", "distribute", "acknowledge", "generate"},
}

// ValidateAction runs the business rules of one action point against data
// without loading or changing anything. For distribute and acknowledge data
// is the notice snapshot including its status; for generate it is the
// change order snapshot.
func (uc *ChangeUseCase) ValidateAction(
	actor *domain.Actor,
	entityType domain.EntityType,
	action string,
	data domain.Fields,
) (domain.ValidationResult, error) {
	if actor == nil {
		return domain.ValidationResult{}, apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required")
	}
	if data == nil {
		data = domain.Fields{}
	}
	v := uc.authz.Validator()
	rctx := authz.BuildRuleContext(actor)

	switch entityType.String() + "/" + strings.ToLower(action) {
	case "ECR/create":
		return v.ValidateECRCreation(data, rctx), nil
	case "ECR/approve":
		return v.ValidateECRApproval(data, true, rctx), nil
	case "ECR/reject":
		return v.ValidateECRApproval(data, false, rctx), nil
	case "ECO/create":
		return v.ValidateECOCreation(data, rctx), nil
	case "ECO/complete":
		return v.ValidateECOCompletion(data, rctx), nil
	case "ECN/create":
		return v.ValidateECNCreation(data, rctx), nil
	case "ECN/distribute":
		return v.ValidateECNDistribution(data, rctx), nil
	case "ECN/acknowledge":
		return v.ValidateECNAcknowledgment(data, data.Text("comments"), rctx), nil
	case "ECN/generate":
		return v.ValidateECNGeneration(data, data.Truthy(FieldECNID)), nil
	default:
		return domain.ValidationResult{}, apperrors.BadRequest(apperrors.CodeUnknownAction,
			fmt.Sprintf("unknown validation action %q for %s", action, entityType)).
			WithParams(map[string]interface{}{"supported": validationActions[entityType]})
	}
}
