package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"changeflow.io/changeflow/internal/domain"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return NewValidator(func() time.Time { return fixedNow })
}

func ctxFor(role domain.Role) Context {
	return Context{UserRole: role, UserID: "u-1", OrganizationID: "org-1", Department: "engineering"}
}

func validECR() domain.Fields {
	return domain.Fields{
		"title":       "Replace bracket",
		"description": "The bracket cracks under vibration load",
		"reason":      "Field failures reported",
		"priority":    "HIGH",
	}
}

func TestValidateECRCreation(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		mutate    func(domain.Fields)
		wantValid bool
		wantErr   string
		wantWarn  string
	}{
		{name: "valid", mutate: func(domain.Fields) {}, wantValid: true},
		{
			name:    "short title",
			mutate:  func(f domain.Fields) { f["title"] = "Fix" },
			wantErr: "Title must be at least 5 characters",
		},
		{
			name:    "unknown priority",
			mutate:  func(f domain.Fields) { f["priority"] = "URGENT" },
			wantErr: "Priority must be one of LOW, MEDIUM, HIGH, CRITICAL",
		},
		{
			name:    "negative cost",
			mutate:  func(f domain.Fields) { f["costImpact"] = -1.0 },
			wantErr: "Cost impact cannot be negative",
		},
		{
			name:    "high cost without plan",
			mutate:  func(f domain.Fields) { f["costImpact"] = 60000.0 },
			wantErr: "High cost changes (>$50k) require detailed implementation plan",
		},
		{
			name: "high cost with plan",
			mutate: func(f domain.Fields) {
				f["costImpact"] = 60000.0
				f["implementationPlan"] = strings.Repeat("p", 50)
			},
			wantValid: true,
		},
		{
			name:    "customer impact without products",
			mutate:  func(f domain.Fields) { f["customerImpact"] = "DIRECT_IMPACT" },
			wantErr: "Affected products are required when customers are impacted",
		},
		{
			name:      "no customer impact",
			mutate:    func(f domain.Fields) { f["customerImpact"] = "NO_IMPACT" },
			wantValid: true,
		},
		{
			name:      "near target date warns",
			mutate:    func(f domain.Fields) { f["targetDate"] = "2026-03-12" },
			wantValid: true,
			wantWarn:  "Target date is less than 7 days away",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validECR()
			tt.mutate(data)
			res := v.ValidateECRCreation(data, ctxFor(domain.RoleRequestor))
			assert.Equal(t, tt.wantValid, res.IsValid, "%v", res.Errors)
			if tt.wantErr != "" {
				assert.Contains(t, res.Errors, tt.wantErr)
			}
			if tt.wantWarn != "" {
				assert.Contains(t, res.Warnings, tt.wantWarn)
			}
		})
	}
}

func TestValidateECRCreation_HighCostScenario(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateECRCreation(domain.Fields{"costImpact": 60000}, ctxFor(domain.RoleRequestor))
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "High cost changes (>$50k) require detailed implementation plan")
}

func TestValidateECRApproval(t *testing.T) {
	v := newTestValidator()

	res := v.ValidateECRApproval(domain.Fields{"comments": "Looks good to go"}, true, ctxFor(domain.RoleManager))
	assert.True(t, res.IsValid, "%v", res.Errors)

	res = v.ValidateECRApproval(domain.Fields{"comments": "Looks good to go"}, true, ctxFor(domain.RoleEngineer))
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "Only managers and administrators can approve or reject change requests")

	res = v.ValidateECRApproval(domain.Fields{"comments": "ok"}, true, ctxFor(domain.RoleManager))
	assert.Contains(t, res.Errors, "Approval comments must be at least 10 characters")

	expensive := domain.Fields{"comments": "Budget reviewed", "costImpact": 150000.0}
	res = v.ValidateECRApproval(expensive, true, ctxFor(domain.RoleManager))
	assert.Contains(t, res.Errors, "Changes over $100k require administrator approval")
	res = v.ValidateECRApproval(expensive, true, ctxFor(domain.RoleAdmin))
	assert.True(t, res.IsValid)

	res = v.ValidateECRApproval(domain.Fields{"rejectionReason": "too short"}, false, ctxFor(domain.RoleManager))
	assert.Equal(t, []string{"Rejection reason must be at least 20 characters"}, res.Errors)
}

func TestValidateECRStatusTransition(t *testing.T) {
	v := newTestValidator()

	res := v.ValidateECRStatusTransition(domain.ECRDraft, domain.ECRDraft, nil, ctxFor(domain.RoleAdmin))
	assert.Equal(t, []string{"Status is already DRAFT"}, res.Errors)

	res = v.ValidateECRStatusTransition(domain.ECRDraft, domain.ECRSubmitted, validECR(), ctxFor(domain.RoleRequestor))
	assert.True(t, res.IsValid)

	res = v.ValidateECRStatusTransition(domain.ECRDraft, domain.ECRCancelled, domain.Fields{}, ctxFor(domain.RoleRequestor))
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"Change request cancelled without a reason"}, res.Warnings)

	res = v.ValidateECRStatusTransition(domain.ECRSubmitted, domain.ECRUnderReview, nil, ctxFor(domain.RoleEngineer))
	assert.True(t, res.IsValid)
}

func validECO() domain.Fields {
	return domain.Fields{
		"title":              "Bracket redesign rollout",
		"implementationPlan": strings.Repeat("i", 50),
		"testingPlan":        strings.Repeat("t", 30),
		"rollbackPlan":       strings.Repeat("r", 30),
		"resourcesRequired":  strings.Repeat("x", 20),
		"targetDate":         "2026-06-01",
	}
}

func TestValidateECOCreation(t *testing.T) {
	v := newTestValidator()

	res := v.ValidateECOCreation(validECO(), ctxFor(domain.RoleManager))
	assert.True(t, res.IsValid, "%v", res.Errors)

	res = v.ValidateECOCreation(validECO(), ctxFor(domain.RoleEngineer))
	assert.Equal(t, []string{"Only managers and administrators can create change orders"}, res.Errors)

	past := validECO()
	past["targetDate"] = "2026-03-10"
	res = v.ValidateECOCreation(past, ctxFor(domain.RoleAdmin))
	assert.Equal(t, []string{"Target date must be in the future"}, res.Errors)

	early := validECO()
	early["effectiveDate"] = "2026-05-01"
	res = v.ValidateECOCreation(early, ctxFor(domain.RoleAdmin))
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"Effective date is before the target date"}, res.Warnings)

	res = v.ValidateECOCreation(domain.Fields{}, ctxFor(domain.RoleAdmin))
	assert.Len(t, res.Errors, 6)
}

func TestValidateECOCompletion(t *testing.T) {
	v := newTestValidator()
	ready := domain.Fields{
		"actualProgress":      100.0,
		"implementationDate":  "2026-03-01",
		"verificationResults": strings.Repeat("v", 50),
		"qualityGatesPassed":  true,
	}

	res := v.ValidateECOCompletion(ready, ctxFor(domain.RoleQuality))
	assert.True(t, res.IsValid, "%v", res.Errors)

	res = v.ValidateECOCompletion(ready, ctxFor(domain.RoleManager))
	assert.False(t, res.IsValid)

	partial := ready.Clone()
	partial["actualProgress"] = 90.0
	partial["qualityGatesPassed"] = "true"
	res = v.ValidateECOCompletion(partial, ctxFor(domain.RoleAdmin))
	assert.Equal(t, []string{
		"Actual progress must be 100% to complete",
		"Quality gates must be passed",
	}, res.Errors)
}

func TestValidateECOStatusTransition(t *testing.T) {
	v := newTestValidator()

	res := v.ValidateECOStatusTransition(domain.ECOInProgress, domain.ECOCancelled, domain.Fields{"actualProgress": 40.0}, ctxFor(domain.RoleManager))
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"Cancelling a change order with recorded progress"}, res.Warnings)

	res = v.ValidateECOStatusTransition(domain.ECOReview, domain.ECOCompleted, domain.Fields{}, ctxFor(domain.RoleQuality))
	assert.False(t, res.IsValid)
}

func validECN() domain.Fields {
	return domain.Fields{
		"title":                   "Bracket change notice",
		"changesImplemented":      strings.Repeat("c", 30),
		"affectedItems":           strings.Repeat("a", 20),
		"dispositionInstructions": strings.Repeat("d", 30),
		"distributionList":        "ops@example.com, qa@example.com",
		"responseDeadline":        "DAYS_14",
	}
}

func TestValidateECNCreation(t *testing.T) {
	v := newTestValidator()

	res := v.ValidateECNCreation(validECN(), ctxFor(domain.RoleDocumentControl))
	assert.True(t, res.IsValid, "%v", res.Errors)

	res = v.ValidateECNCreation(validECN(), ctxFor(domain.RoleManufacturing))
	assert.False(t, res.IsValid)

	bad := validECN()
	bad["distributionList"] = "ops@example.com, not-an-email, qa@nowhere"
	bad["responseDeadline"] = "DAYS_3"
	res = v.ValidateECNCreation(bad, ctxFor(domain.RoleAdmin))
	assert.Equal(t, []string{
		"Invalid email addresses in distribution list: not-an-email, qa@nowhere",
		"Response deadline must be one of DAYS_7, DAYS_14, DAYS_30, DAYS_60, DAYS_90",
	}, res.Errors)

	missing := validECN()
	delete(missing, "distributionList")
	res = v.ValidateECNCreation(missing, ctxFor(domain.RoleAdmin))
	assert.Equal(t, []string{"Distribution list is required"}, res.Errors)
}

func TestValidateECNDistribution(t *testing.T) {
	v := newTestValidator()

	for _, status := range []domain.Status{domain.ECNPendingDistribution, domain.ECNApproved} {
		data := validECN()
		data["status"] = string(status)
		res := v.ValidateECNDistribution(data, ctxFor(domain.RoleDocumentControl))
		assert.True(t, res.IsValid, "%s: %v", status, res.Errors)
	}

	draft := validECN()
	draft["status"] = "DRAFT"
	res := v.ValidateECNDistribution(draft, ctxFor(domain.RoleDocumentControl))
	assert.Equal(t, []string{"Change notice must be pending distribution, current status is DRAFT"}, res.Errors)

	notify := validECN()
	notify["status"] = "APPROVED"
	notify["customerNotification"] = "REQUIRED"
	res = v.ValidateECNDistribution(notify, ctxFor(domain.RoleEngineer))
	assert.Equal(t, []string{
		"Only document control and administrators can distribute change notices",
		"Notification method is required when customer notification is required",
	}, res.Errors)
}

func TestValidateECNAcknowledgment(t *testing.T) {
	v := newTestValidator()

	late := domain.Fields{
		"status":           "DISTRIBUTED",
		"distributedAt":    fixedNow.Add(-10 * day).Format(time.RFC3339),
		"responseDeadline": "DAYS_7",
	}
	res := v.ValidateECNAcknowledgment(late, "", ctxFor(domain.RoleEngineer))
	assert.True(t, res.IsValid)
	assert.Contains(t, res.Warnings, "Response is past the deadline")
	assert.Contains(t, res.Warnings, "Acknowledgment has no comments")

	onTime := late.Clone()
	onTime["responseDeadline"] = "DAYS_14"
	res = v.ValidateECNAcknowledgment(onTime, "Received and reviewed", ctxFor(domain.RoleEngineer))
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)

	draft := domain.Fields{"status": "DRAFT"}
	res = v.ValidateECNAcknowledgment(draft, "ok", ctxFor(domain.RoleEngineer))
	assert.False(t, res.IsValid)
}

func TestValidateECNGeneration(t *testing.T) {
	v := newTestValidator()

	assert.True(t, v.ValidateECNGeneration(domain.Fields{"status": "COMPLETED"}, false).IsValid)

	res := v.ValidateECNGeneration(domain.Fields{"status": "REVIEW"}, true)
	assert.Equal(t, []string{
		"ECO must be COMPLETED before an ECN can be generated, current status is REVIEW",
		"An ECN already exists for this ECO",
	}, res.Errors)
}

func TestValidateECNStatusTransition(t *testing.T) {
	v := newTestValidator()

	res := v.ValidateECNStatusTransition(domain.ECNApproved, domain.ECNDistributed, validECN(), ctxFor(domain.RoleDocumentControl))
	assert.True(t, res.IsValid, "%v", res.Errors)

	res = v.ValidateECNStatusTransition(domain.ECNDistributed, domain.ECNEffective, domain.Fields{"effectiveDate": "2026-04-01"}, ctxFor(domain.RoleAdmin))
	assert.Equal(t, []string{"Effective date must not be in the future"}, res.Errors)
}

func TestGeneralRules(t *testing.T) {
	v := newTestValidator()

	assert.True(t, v.ValidateBudgetCapacity(500, 1000).IsValid)
	res := v.ValidateBudgetCapacity(950, 1000)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)
	assert.False(t, v.ValidateBudgetCapacity(1001, 1000).IsValid)

	assert.True(t, v.ValidateWorkloadCapacity(3, 10).IsValid)
	res = v.ValidateWorkloadCapacity(8, 10)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)
	assert.False(t, v.ValidateWorkloadCapacity(10, 10).IsValid)

	assert.True(t, v.ValidateDepartmentAlignment("eng", "eng", domain.RoleEngineer).IsValid)
	assert.True(t, v.ValidateDepartmentAlignment("eng", "qa", domain.RoleAdmin).IsValid)
	res = v.ValidateDepartmentAlignment("eng", "qa", domain.RoleManager)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)
	assert.False(t, v.ValidateDepartmentAlignment("eng", "qa", domain.RoleEngineer).IsValid)
}

func TestValidatorsAreIdempotent(t *testing.T) {
	v := newTestValidator()
	data := domain.Fields{"costImpact": 60000.0, "title": "abc"}
	first := v.ValidateECRCreation(data, ctxFor(domain.RoleRequestor))
	second := v.ValidateECRCreation(data, ctxFor(domain.RoleRequestor))
	assert.Equal(t, first, second)
}

func TestCombine(t *testing.T) {
	r1 := domain.NewValidationResult([]string{"a", "b"}, []string{"w"})
	r2 := domain.NewValidationResult([]string{"b", "c"}, []string{"w"})
	got := Combine(r1, r2)
	assert.False(t, got.IsValid)
	assert.Equal(t, []string{"a", "b", "c"}, got.Errors)
	assert.Equal(t, []string{"w"}, got.Warnings)

	require.True(t, Combine(domain.Valid(), domain.NewValidationResult(nil, []string{"x"})).IsValid)
}

func TestValidateStatusTransition_Dispatch(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateStatusTransition(domain.EntityType("PART"), domain.ECRDraft, domain.ECRSubmitted, nil, Context{})
	assert.False(t, res.IsValid)
	res = v.ValidateStatusTransition(domain.EntityECO, domain.ECOReview, domain.ECOCompleted, domain.Fields{}, ctxFor(domain.RoleQuality))
	assert.False(t, res.IsValid)
}

func TestContextFor(t *testing.T) {
	assert.Equal(t, Context{}, ContextFor(nil))
	got := ContextFor(&domain.Actor{ID: "u", Role: domain.RoleQuality, Department: "qa", OrganizationID: "o"})
	assert.Equal(t, Context{UserRole: domain.RoleQuality, UserID: "u", Department: "qa", OrganizationID: "o"}, got)
}
