package workflow

import (
	"time"

	"changeflow.io/changeflow/internal/domain"
)

// Role groups used by the tables. ADMIN appears on every edge; the system
// actor runs as ADMIN for the system-only ECR edges.
var (
	anySubmitter = []domain.Role{
		domain.RoleRequestor, domain.RoleEngineer, domain.RoleQuality, domain.RoleManufacturing,
		domain.RoleManager, domain.RoleDocumentControl, domain.RoleAdmin,
	}
	reviewers     = []domain.Role{domain.RoleEngineer, domain.RoleManager, domain.RoleAdmin}
	approvers     = []domain.Role{domain.RoleManager, domain.RoleAdmin}
	systemOnly    = []domain.Role{domain.RoleAdmin}
	completers    = []domain.Role{domain.RoleQuality, domain.RoleManager, domain.RoleAdmin}
	implementers  = []domain.Role{domain.RoleEngineer, domain.RoleManufacturing, domain.RoleManager, domain.RoleAdmin}
	ecnAuthors    = []domain.Role{domain.RoleDocumentControl, domain.RoleEngineer, domain.RoleQuality, domain.RoleAdmin}
	ecnCancellers = []domain.Role{domain.RoleDocumentControl, domain.RoleManager, domain.RoleAdmin}
	distributors  = []domain.Role{domain.RoleDocumentControl, domain.RoleAdmin}
)

func hasLinkedECO(entity domain.Fields, _ *domain.Actor, _ time.Time) bool {
	return entity.Truthy("ecoId")
}

func effectiveDateReached(entity domain.Fields, _ *domain.Actor, now time.Time) bool {
	effective, ok := entity.Time("effectiveDate")
	return ok && !effective.After(now)
}

func edge(from, to domain.Status, roles []domain.Role, desc string) Transition {
	return Transition{From: from, To: to, RequiredRoles: roles, Description: desc}
}

func guarded(from, to domain.Status, roles []domain.Role, desc string, c TransitionConditions) Transition {
	t := edge(from, to, roles, desc)
	t.Conditions = &c
	return t
}

func defaultTables() map[domain.EntityType][]Transition {
	return map[domain.EntityType][]Transition{
		domain.EntityECR: ecrTransitions(),
		domain.EntityECO: ecoTransitions(),
		domain.EntityECN: ecnTransitions(),
	}
}

func ecrTransitions() []Transition {
	return []Transition{
		guarded(domain.ECRDraft, domain.ECRSubmitted, anySubmitter, "Submit change request for review",
			TransitionConditions{FieldValidations: []string{"title", "description", "reason"}}),
		edge(domain.ECRDraft, domain.ECRCancelled, anySubmitter, "Cancel draft change request"),

		edge(domain.ECRSubmitted, domain.ECRUnderReview, reviewers, "Start review"),
		edge(domain.ECRSubmitted, domain.ECRCancelled, []domain.Role{domain.RoleRequestor, domain.RoleManager, domain.RoleAdmin},
			"Withdraw submitted change request"),

		guarded(domain.ECRUnderReview, domain.ECRInAnalysis, reviewers, "Begin impact analysis",
			TransitionConditions{FieldValidations: []string{"assigneeId"}}),
		guarded(domain.ECRUnderReview, domain.ECRApproved, approvers, "Fast-track approval without analysis",
			TransitionConditions{RequiresApproval: true}),
		edge(domain.ECRUnderReview, domain.ECRCancelled, approvers, "Cancel during review"),

		guarded(domain.ECRInAnalysis, domain.ECRPendingApproval, reviewers, "Submit analysis for approval",
			TransitionConditions{FieldValidations: []string{"impactAnalysis"}}),

		guarded(domain.ECRPendingApproval, domain.ECRApproved, approvers, "Approve change request",
			TransitionConditions{RequiresApproval: true}),
		guarded(domain.ECRPendingApproval, domain.ECRRejected, approvers, "Reject change request",
			TransitionConditions{FieldValidations: []string{"rejectionReason"}}),

		guarded(domain.ECRApproved, domain.ECRImplemented, systemOnly, "Mark implemented by linked change order",
			TransitionConditions{CustomValidation: hasLinkedECO, CustomMessage: "A linked ECO is required"}),
		guarded(domain.ECRApproved, domain.ECRConverted, systemOnly, "Convert into a change order",
			TransitionConditions{CustomValidation: hasLinkedECO, CustomMessage: "A linked ECO is required"}),
	}
}

func ecoTransitions() []Transition {
	return []Transition{
		edge(domain.ECODraft, domain.ECOPlanning, reviewers, "Start planning"),
		edge(domain.ECODraft, domain.ECOCancelled, approvers, "Cancel draft change order"),

		guarded(domain.ECOPlanning, domain.ECOApproved, approvers, "Approve implementation plan",
			TransitionConditions{
				FieldValidations: []string{"implementationPlan", "testingPlan", "rollbackPlan"},
				RequiresApproval: true,
			}),
		edge(domain.ECOPlanning, domain.ECOBacklog, approvers, "Move to backlog"),
		edge(domain.ECOPlanning, domain.ECOCancelled, approvers, "Cancel during planning"),

		edge(domain.ECOBacklog, domain.ECOPlanning, reviewers, "Resume planning"),

		edge(domain.ECOApproved, domain.ECOInProgress, implementers, "Start implementation"),
		edge(domain.ECOApproved, domain.ECOCancelled, approvers, "Cancel approved change order"),

		edge(domain.ECOInProgress, domain.ECOReview, implementers, "Submit implementation for review"),
		guarded(domain.ECOInProgress, domain.ECOOnHold, reviewers, "Put implementation on hold",
			TransitionConditions{FieldValidations: []string{"holdReason"}}),
		edge(domain.ECOInProgress, domain.ECOCancelled, approvers, "Cancel during implementation"),

		edge(domain.ECOOnHold, domain.ECOInProgress, reviewers, "Resume implementation"),

		guarded(domain.ECOReview, domain.ECOCompleted, completers, "Complete change order",
			TransitionConditions{RequiresAllApprovals: true}),
	}
}

func ecnTransitions() []Transition {
	return []Transition{
		guarded(domain.ECNDraft, domain.ECNPendingApproval, ecnAuthors, "Submit notice for approval",
			TransitionConditions{FieldValidations: []string{"title", "changesImplemented"}}),
		edge(domain.ECNDraft, domain.ECNCancelled, ecnCancellers, "Cancel draft notice"),

		guarded(domain.ECNPendingApproval, domain.ECNApproved, approvers, "Approve notice",
			TransitionConditions{RequiresApproval: true}),
		edge(domain.ECNPendingApproval, domain.ECNCancelled, approvers, "Cancel pending notice"),

		guarded(domain.ECNApproved, domain.ECNDistributed, distributors, "Distribute notice",
			TransitionConditions{FieldValidations: []string{"distributionList"}}),

		guarded(domain.ECNDistributed, domain.ECNEffective, distributors, "Mark notice effective",
			TransitionConditions{
				CustomValidation: effectiveDateReached,
				CustomMessage:    "Effective date must not be in the future",
			}),
	}
}
