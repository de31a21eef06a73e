package rules

import (
	"changeflow.io/changeflow/internal/domain"
)

const (
	budgetWarnRatio   = 0.9
	workloadWarnRatio = 0.8
)

// ValidateBudgetCapacity checks a requested amount against what is left.
func (v *Validator) ValidateBudgetCapacity(requested, available float64) domain.ValidationResult {
	var r report
	switch {
	case requested < 0:
		r.fail("Requested amount cannot be negative")
	case requested > available:
		r.fail("Requested amount %.2f exceeds available budget %.2f", requested, available)
	case requested > available*budgetWarnRatio:
		r.warn("Requested amount uses more than 90%% of the available budget")
	}
	return r.result()
}

// ValidateWorkloadCapacity checks whether an assignee can take more work.
func (v *Validator) ValidateWorkloadCapacity(current, maximum int) domain.ValidationResult {
	var r report
	switch {
	case maximum <= 0 || current >= maximum:
		r.fail("Assignee is at maximum workload (%d of %d)", current, maximum)
	case float64(current) >= float64(maximum)*workloadWarnRatio:
		r.warn("Assignee is above 80%% of maximum workload (%d of %d)", current, maximum)
	}
	return r.result()
}

// ValidateDepartmentAlignment checks that the actor works in the entity's
// department. Administrators may act anywhere; managers get a warning.
func (v *Validator) ValidateDepartmentAlignment(userDepartment, entityDepartment string, role domain.Role) domain.ValidationResult {
	var r report
	if userDepartment == "" || entityDepartment == "" || userDepartment == entityDepartment {
		return r.result()
	}
	switch role {
	case domain.RoleAdmin:
	case domain.RoleManager:
		r.warn("Cross-department action: %s acting on %s", userDepartment, entityDepartment)
	default:
		r.fail("Department %s cannot act on %s changes", userDepartment, entityDepartment)
	}
	return r.result()
}
