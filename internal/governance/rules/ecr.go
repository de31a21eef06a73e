package rules

import "changeflow.io/changeflow/internal/domain"

// ECR priorities and customer impact levels.
var (
	ecrPriorities      = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}
	ecrCustomerImpacts = []string{"NO_IMPACT", "INDIRECT_IMPACT", "DIRECT_IMPACT", "CUSTOMER_ACTION_REQUIRED"}
	ecrApprovers       = []domain.Role{domain.RoleManager, domain.RoleAdmin}
)

const (
	highCostThreshold     = 50_000
	adminApprovalCost     = 100_000
	ecrTargetLeadTimeDays = 7

	msgHighCostPlan = "High cost changes (>$50k) require detailed implementation plan"
)

// ValidateECRCreation checks a new change request.
func (v *Validator) ValidateECRCreation(data domain.Fields, _ Context) domain.ValidationResult {
	var r report

	r.minLength(data, "title", "Title", 5)
	r.minLength(data, "description", "Description", 20)
	r.minLength(data, "reason", "Reason", 10)
	r.oneOf(data, "priority", "Priority", ecrPriorities)

	if data.Has("costImpact") {
		cost, ok := data.Float("costImpact")
		switch {
		case !ok:
			r.fail("Cost impact must be a number")
		case cost < 0:
			r.fail("Cost impact cannot be negative")
		case cost > highCostThreshold && textLen(data, "implementationPlan") < 50:
			r.fail(msgHighCostPlan)
		}
	}

	if data.Has("customerImpact") {
		r.oneOf(data, "customerImpact", "Customer impact", ecrCustomerImpacts)
		if data.Text("customerImpact") != "NO_IMPACT" && !data.Truthy("affectedProducts") {
			r.fail("Affected products are required when customers are impacted")
		}
	}

	if target, ok := data.Time("targetDate"); ok {
		if target.Before(v.now().Add(ecrTargetLeadTimeDays * day)) {
			r.warn("Target date is less than %d days away", ecrTargetLeadTimeDays)
		}
	}

	return r.result()
}

// ValidateECRApproval checks an approve (approved=true) or reject decision.
func (v *Validator) ValidateECRApproval(data domain.Fields, approved bool, rctx Context) domain.ValidationResult {
	var r report

	r.requireRole(rctx.UserRole, ecrApprovers, "Only managers and administrators can approve or reject change requests")

	if approved {
		r.minLength(data, "comments", "Approval comments", 10)
		if cost, ok := data.Float("costImpact"); ok && cost > adminApprovalCost && rctx.UserRole != domain.RoleAdmin {
			r.fail("Changes over $100k require administrator approval")
		}
	} else {
		r.minLength(data, "rejectionReason", "Rejection reason", 20)
	}

	return r.result()
}

// ValidateECRStatusTransition applies the rules attached to the target status.
func (v *Validator) ValidateECRStatusTransition(current, next domain.Status, data domain.Fields, rctx Context) domain.ValidationResult {
	if current == next {
		return sameStatus(current)
	}
	switch next {
	case domain.ECRSubmitted:
		return v.ValidateECRCreation(data, rctx)
	case domain.ECRApproved:
		return v.ValidateECRApproval(data, true, rctx)
	case domain.ECRRejected:
		return v.ValidateECRApproval(data, false, rctx)
	case domain.ECRCancelled:
		var r report
		if !data.Truthy("cancellationReason") {
			r.warn("Change request cancelled without a reason")
		}
		return r.result()
	default:
		return domain.Valid()
	}
}
