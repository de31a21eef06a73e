package usecase

import (
	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/authz"
	"changeflow.io/changeflow/internal/governance/rules"
)

// Capacity inputs carried on entities by the surrounding application.
const (
	fieldCostImpact      = "costImpact"
	fieldAvailableBudget = "availableBudget"
	fieldAssigneeLoad    = "assigneeOpenChanges"
	fieldAssigneeMax     = "assigneeMaxChanges"
)

// RulesForTransition returns the cross-cutting rules attached to entering
// status to, on top of the per-status rules the authorizer always runs.
func RulesForTransition(v *rules.Validator, entityType domain.EntityType, to domain.Status) []authz.RuleFunc {
	switch {
	case entityType == domain.EntityECO && to == domain.ECOApproved:
		return []authz.RuleFunc{budgetRule(v)}
	case entityType == domain.EntityECO && to == domain.ECOInProgress:
		return []authz.RuleFunc{workloadRule(v)}
	case entityType == domain.EntityECR && (to == domain.ECRUnderReview || to == domain.ECRInAnalysis):
		return []authz.RuleFunc{departmentRule(v)}
	default:
		return nil
	}
}

// budgetRule applies when the entity carries both a cost and a budget.
func budgetRule(v *rules.Validator) authz.RuleFunc {
	return func(e *domain.Entity, _ rules.Context) domain.ValidationResult {
		cost, hasCost := e.Fields.Float(fieldCostImpact)
		budget, hasBudget := e.Fields.Float(fieldAvailableBudget)
		if !hasCost || !hasBudget {
			return domain.Valid()
		}
		return v.ValidateBudgetCapacity(cost, budget)
	}
}

func workloadRule(v *rules.Validator) authz.RuleFunc {
	return func(e *domain.Entity, _ rules.Context) domain.ValidationResult {
		load, hasLoad := e.Fields.Float(fieldAssigneeLoad)
		limit, hasLimit := e.Fields.Float(fieldAssigneeMax)
		if !hasLoad || !hasLimit {
			return domain.Valid()
		}
		return v.ValidateWorkloadCapacity(int(load), int(limit))
	}
}

func departmentRule(v *rules.Validator) authz.RuleFunc {
	return func(e *domain.Entity, rctx rules.Context) domain.ValidationResult {
		return v.ValidateDepartmentAlignment(rctx.Department, e.Department(), rctx.UserRole)
	}
}
