package rules

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"changeflow.io/changeflow/internal/domain"
)

// ResponseDeadline is how long recipients have to acknowledge a notice.
type ResponseDeadline string

const (
	Deadline7Days  ResponseDeadline = "DAYS_7"
	Deadline14Days ResponseDeadline = "DAYS_14"
	Deadline30Days ResponseDeadline = "DAYS_30"
	Deadline60Days ResponseDeadline = "DAYS_60"
	Deadline90Days ResponseDeadline = "DAYS_90"
)

var deadlineDays = map[ResponseDeadline]int{
	Deadline7Days:  7,
	Deadline14Days: 14,
	Deadline30Days: 30,
	Deadline60Days: 60,
	Deadline90Days: 90,
}

// Days returns the deadline length, 0 when unknown.
func (d ResponseDeadline) Days() int { return deadlineDays[d] }

var (
	responseDeadlines = []string{
		string(Deadline7Days), string(Deadline14Days), string(Deadline30Days),
		string(Deadline60Days), string(Deadline90Days),
	}
	ecnAuthors      = []domain.Role{domain.RoleDocumentControl, domain.RoleEngineer, domain.RoleQuality, domain.RoleAdmin}
	ecnDistributors = []domain.Role{domain.RoleDocumentControl, domain.RoleAdmin}

	// PENDING_DISTRIBUTION is the historical name; APPROVED is what the
	// transition table uses before DISTRIBUTED.
	distributableStatuses = []domain.Status{domain.ECNPendingDistribution, domain.ECNApproved}

	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

const msgPastDeadline = "Response is past the deadline"

// ValidateECNCreation checks a new change notice.
func (v *Validator) ValidateECNCreation(data domain.Fields, rctx Context) domain.ValidationResult {
	var r report

	r.requireRole(rctx.UserRole, ecnAuthors, "Only document control, engineering, quality and administrators can create change notices")

	r.minLength(data, "title", "Title", 10)
	r.minLength(data, "changesImplemented", "Changes implemented", 30)
	r.minLength(data, "affectedItems", "Affected items", 20)
	r.minLength(data, "dispositionInstructions", "Disposition instructions", 30)

	r.distributionList(data)
	r.oneOf(data, "responseDeadline", "Response deadline", responseDeadlines)

	return r.result()
}

func (r *report) distributionList(data domain.Fields) {
	list := data.Text("distributionList")
	if list == "" {
		r.fail("Distribution list is required")
		return
	}
	if invalid := invalidEmails(list); len(invalid) > 0 {
		r.fail("Invalid email addresses in distribution list: %s", strings.Join(invalid, ", "))
	}
}

func invalidEmails(list string) []string {
	var invalid []string
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !emailPattern.MatchString(entry) {
			invalid = append(invalid, entry)
		}
	}
	return invalid
}

// ValidateECNDistribution checks that a notice may be sent out. data is the
// entity snapshot including its status.
func (v *Validator) ValidateECNDistribution(data domain.Fields, rctx Context) domain.ValidationResult {
	var r report

	r.requireRole(rctx.UserRole, ecnDistributors, "Only document control and administrators can distribute change notices")

	status := statusOf(data)
	if !slices.Contains(distributableStatuses, status) {
		r.fail("Change notice must be pending distribution, current status is %s", status)
	}

	r.distributionList(data)

	if data.Text("customerNotification") == "REQUIRED" && data.Text("notificationMethod") == "" {
		r.fail("Notification method is required when customer notification is required")
	}

	return r.result()
}

// ValidateECNAcknowledgment checks a recipient's acknowledgment of a
// distributed notice. Lateness and missing comments are warnings.
func (v *Validator) ValidateECNAcknowledgment(data domain.Fields, comments string, _ Context) domain.ValidationResult {
	var r report

	if status := statusOf(data); status != domain.ECNDistributed {
		r.fail("Change notice must be distributed before it can be acknowledged, current status is %s", status)
	}

	if strings.TrimSpace(comments) == "" {
		r.warn("Acknowledgment has no comments")
	}

	distributedAt, ok := data.Time(domain.FieldDistributedAt)
	days := ResponseDeadline(data.Text("responseDeadline")).Days()
	if ok && days > 0 {
		deadline := distributedAt.Add(time.Duration(days) * day)
		if v.now().After(deadline) {
			r.warns = append(r.warns, msgPastDeadline)
		}
	}

	return r.result()
}

// ValidateECNGeneration checks that a notice may be generated from eco.
func (v *Validator) ValidateECNGeneration(eco domain.Fields, hasExistingECN bool) domain.ValidationResult {
	var r report
	if status := statusOf(eco); status != domain.ECOCompleted {
		r.fail("ECO must be COMPLETED before an ECN can be generated, current status is %s", status)
	}
	if hasExistingECN {
		r.fail("An ECN already exists for this ECO")
	}
	return r.result()
}

// ValidateECNStatusTransition applies the rules attached to the target status.
func (v *Validator) ValidateECNStatusTransition(current, next domain.Status, data domain.Fields, rctx Context) domain.ValidationResult {
	if current == next {
		return sameStatus(current)
	}
	switch next {
	case domain.ECNPendingApproval:
		return v.ValidateECNCreation(data, rctx)
	case domain.ECNDistributed:
		snapshot := data.Clone()
		if snapshot == nil {
			snapshot = domain.Fields{}
		}
		snapshot[domain.FieldStatus] = string(current)
		return v.ValidateECNDistribution(snapshot, rctx)
	case domain.ECNEffective:
		var r report
		effective, ok := data.Time("effectiveDate")
		switch {
		case !ok:
			r.fail("Effective date is required")
		case effective.After(v.now()):
			r.fail("Effective date must not be in the future")
		}
		return r.result()
	default:
		return domain.Valid()
	}
}
