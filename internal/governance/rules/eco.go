package rules

import "changeflow.io/changeflow/internal/domain"

var (
	ecoCreators   = []domain.Role{domain.RoleManager, domain.RoleAdmin}
	ecoCompleters = []domain.Role{domain.RoleQuality, domain.RoleAdmin}
)

// ValidateECOCreation checks a new change order.
func (v *Validator) ValidateECOCreation(data domain.Fields, rctx Context) domain.ValidationResult {
	var r report

	r.requireRole(rctx.UserRole, ecoCreators, "Only managers and administrators can create change orders")

	r.minLength(data, "title", "Title", 10)
	r.minLength(data, "implementationPlan", "Implementation plan", 50)
	r.minLength(data, "testingPlan", "Testing plan", 30)
	r.minLength(data, "rollbackPlan", "Rollback plan", 30)
	r.minLength(data, "resourcesRequired", "Resources required", 20)

	target, hasTarget := data.Time("targetDate")
	switch {
	case !hasTarget:
		r.fail("Target date is required")
	case !target.After(v.now()):
		r.fail("Target date must be in the future")
	}

	if effective, ok := data.Time("effectiveDate"); ok && hasTarget && effective.Before(target) {
		r.warn("Effective date is before the target date")
	}

	if data.Has("costImpact") {
		if cost, ok := data.Float("costImpact"); !ok || cost < 0 {
			r.fail("Cost impact cannot be negative")
		}
	}

	return r.result()
}

// ValidateECOCompletion checks that a change order is ready to close.
func (v *Validator) ValidateECOCompletion(data domain.Fields, rctx Context) domain.ValidationResult {
	var r report

	r.requireRole(rctx.UserRole, ecoCompleters, "Only quality and administrators can complete change orders")

	if progress, ok := data.Float("actualProgress"); !ok || progress != 100 {
		r.fail("Actual progress must be 100%% to complete")
	}
	if _, ok := data.Time("implementationDate"); !ok {
		r.fail("Implementation date is required")
	}
	r.minLength(data, "verificationResults", "Verification results", 50)
	if !data.Bool("qualityGatesPassed") {
		r.fail("Quality gates must be passed")
	}

	return r.result()
}

// ValidateECOStatusTransition applies the rules attached to the target status.
func (v *Validator) ValidateECOStatusTransition(current, next domain.Status, data domain.Fields, rctx Context) domain.ValidationResult {
	if current == next {
		return sameStatus(current)
	}
	var r report
	switch next {
	case domain.ECOCompleted:
		return v.ValidateECOCompletion(data, rctx)
	case domain.ECOInProgress:
		if current == domain.ECOApproved && !data.Truthy("implementationDate") {
			r.warn("No implementation date planned")
		}
	case domain.ECOCancelled:
		if progress, ok := data.Float("actualProgress"); ok && progress > 0 {
			r.warn("Cancelling a change order with recorded progress")
		}
	}
	return r.result()
}
