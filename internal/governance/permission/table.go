package permission

import "changeflow.io/changeflow/internal/domain"

func grant(entity domain.EntityType, actions ...Action) []Permission {
	out := make([]Permission, 0, len(actions))
	for _, a := range actions {
		out = append(out, Permission{Entity: entity, Action: a})
	}
	return out
}

func when(entity domain.EntityType, action Action, c Conditions) Permission {
	return Permission{Entity: entity, Action: action, Conditions: &c}
}

func rows(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Update allowlists for department reviewers working on an ECO.
var (
	ecoQualityFields = []string{
		"qualityApproval", "verificationResults", "qualityGatesPassed", "actualProgress", "comments",
	}
	ecoEngineeringFields = []string{
		"engineeringApproval", "implementationPlan", "testingPlan", "rollbackPlan",
		"actualProgress", "implementationDate", "comments",
	}
	ecoManufacturingFields = []string{
		"manufacturingApproval", "resourcesRequired", "actualProgress", "implementationDate", "comments",
	}
	ecnDocumentFields = []string{
		"title", "changesImplemented", "affectedItems", "dispositionInstructions",
		"distributionList", "responseDeadline", "customerNotification", "notificationMethod",
		"effectiveDate", "comments",
	}
)

var ecrEditableStatuses = []domain.Status{domain.ECRDraft, domain.ECRSubmitted}

func defaultTable() map[domain.Role][]Permission {
	all := AllActions()
	return map[domain.Role][]Permission{
		domain.RoleAdmin: rows(
			grant(domain.EntityECR, all...),
			grant(domain.EntityECO, all...),
			grant(domain.EntityECN, all...),
		),

		domain.RoleManager: rows(
			grant(domain.EntityECR,
				ActionCreate, ActionRead, ActionUpdate, ActionApprove, ActionReject,
				ActionTransition, ActionComment, ActionAssign, ActionBulk),
			grant(domain.EntityECO,
				ActionCreate, ActionRead, ActionUpdate, ActionApprove, ActionReject,
				ActionTransition, ActionComment, ActionAssign, ActionBulk),
			grant(domain.EntityECN,
				ActionRead, ActionApprove, ActionReject, ActionTransition, ActionComment),
		),

		domain.RoleEngineer: rows(
			grant(domain.EntityECR, ActionCreate, ActionRead),
			[]Permission{
				when(domain.EntityECR, ActionUpdate, Conditions{OwnedOnly: true, StatusRestrictions: ecrEditableStatuses}),
				when(domain.EntityECR, ActionTransition, Conditions{DepartmentOnly: true}),
			},
			grant(domain.EntityECR, ActionComment),
			grant(domain.EntityECO, ActionRead),
			[]Permission{
				when(domain.EntityECO, ActionUpdate, Conditions{OwnedOnly: true, FieldRestrictions: ecoEngineeringFields}),
				when(domain.EntityECO, ActionTransition, Conditions{OwnedOnly: true}),
			},
			grant(domain.EntityECO, ActionComment),
			grant(domain.EntityECN, ActionCreate, ActionRead),
			[]Permission{
				when(domain.EntityECN, ActionUpdate, Conditions{OwnedOnly: true, StatusRestrictions: []domain.Status{domain.ECNDraft}}),
				when(domain.EntityECN, ActionTransition, Conditions{OwnedOnly: true}),
			},
			grant(domain.EntityECN, ActionComment),
		),

		domain.RoleQuality: rows(
			grant(domain.EntityECR, ActionCreate, ActionRead, ActionComment),
			grant(domain.EntityECO, ActionRead),
			[]Permission{
				when(domain.EntityECO, ActionUpdate, Conditions{FieldRestrictions: ecoQualityFields}),
			},
			grant(domain.EntityECO, ActionApprove, ActionReject, ActionTransition, ActionComment),
			grant(domain.EntityECN, ActionCreate, ActionRead),
			[]Permission{
				when(domain.EntityECN, ActionUpdate, Conditions{OwnedOnly: true, StatusRestrictions: []domain.Status{domain.ECNDraft}}),
			},
			grant(domain.EntityECN, ActionTransition, ActionComment),
		),

		domain.RoleManufacturing: rows(
			grant(domain.EntityECR, ActionCreate, ActionRead, ActionComment),
			grant(domain.EntityECO, ActionRead),
			[]Permission{
				when(domain.EntityECO, ActionUpdate, Conditions{FieldRestrictions: ecoManufacturingFields}),
				when(domain.EntityECO, ActionTransition, Conditions{DepartmentOnly: true}),
			},
			grant(domain.EntityECO, ActionApprove, ActionComment),
			grant(domain.EntityECN, ActionRead, ActionComment),
		),

		domain.RoleDocumentControl: rows(
			grant(domain.EntityECR, ActionRead, ActionComment),
			grant(domain.EntityECO, ActionRead, ActionComment),
			grant(domain.EntityECN, ActionCreate, ActionRead),
			[]Permission{
				when(domain.EntityECN, ActionUpdate, Conditions{FieldRestrictions: ecnDocumentFields}),
			},
			grant(domain.EntityECN, ActionTransition, ActionComment, ActionAssign, ActionBulk),
		),

		domain.RoleRequestor: rows(
			grant(domain.EntityECR, ActionCreate, ActionRead),
			[]Permission{
				when(domain.EntityECR, ActionUpdate, Conditions{OwnedOnly: true, StatusRestrictions: []domain.Status{domain.ECRDraft}}),
				when(domain.EntityECR, ActionDelete, Conditions{OwnedOnly: true, StatusRestrictions: []domain.Status{domain.ECRDraft}}),
				when(domain.EntityECR, ActionTransition, Conditions{OwnedOnly: true}),
			},
			grant(domain.EntityECR, ActionComment),
			grant(domain.EntityECO, ActionRead),
			grant(domain.EntityECN, ActionRead),
		),

		domain.RoleViewer: rows(
			grant(domain.EntityECR, ActionRead),
			grant(domain.EntityECO, ActionRead),
			grant(domain.EntityECN, ActionRead),
		),
	}
}
