// Package rules implements the semantic business rules checked at the
// create, approve, complete, distribute and acknowledge action points.
//
// Every validator is a pure function of its inputs and the injected clock
// and returns a domain.ValidationResult. Errors block; warnings never do.
//
// Import Path: changeflow.io/changeflow/internal/governance/rules
package rules

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"changeflow.io/changeflow/internal/domain"
)

// Context is the per-request actor view used by business rules.
type Context struct {
	UserRole       domain.Role
	OrganizationID string
	UserID         string
	Department     string
}

// ContextFor builds a rule context from a resolved actor.
func ContextFor(actor *domain.Actor) Context {
	if actor == nil {
		return Context{}
	}
	return Context{
		UserRole:       actor.Role,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.ID,
		Department:     actor.Department,
	}
}

// Validator evaluates business rules against a clock.
type Validator struct {
	now func() time.Time
}

// NewValidator returns a Validator. A nil clock means time.Now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Combine merges results; see domain.Combine.
func Combine(results ...domain.ValidationResult) domain.ValidationResult {
	return domain.Combine(results...)
}

// ValidateStatusTransition dispatches to the entity's status-transition rules.
func (v *Validator) ValidateStatusTransition(
	entityType domain.EntityType,
	current, next domain.Status,
	data domain.Fields,
	rctx Context,
) domain.ValidationResult {
	switch entityType {
	case domain.EntityECR:
		return v.ValidateECRStatusTransition(current, next, data, rctx)
	case domain.EntityECO:
		return v.ValidateECOStatusTransition(current, next, data, rctx)
	case domain.EntityECN:
		return v.ValidateECNStatusTransition(current, next, data, rctx)
	default:
		return domain.NewValidationResult([]string{fmt.Sprintf("Unknown entity type %s", entityType)}, nil)
	}
}

// report accumulates errors and warnings for one validator call.
type report struct {
	errs  []string
	warns []string
}

func (r *report) fail(format string, args ...any) {
	r.errs = append(r.errs, fmt.Sprintf(format, args...))
}

func (r *report) warn(format string, args ...any) {
	r.warns = append(r.warns, fmt.Sprintf(format, args...))
}

// minLength fails when the trimmed text of field is shorter than n runes.
func (r *report) minLength(data domain.Fields, field, label string, n int) {
	if textLen(data, field) < n {
		r.fail("%s must be at least %d characters", label, n)
	}
}

func textLen(data domain.Fields, field string) int {
	return utf8.RuneCountInString(data.Text(field))
}

func (r *report) oneOf(data domain.Fields, field, label string, allowed []string) {
	value := data.Text(field)
	if !slices.Contains(allowed, value) {
		r.fail("%s must be one of %s", label, strings.Join(allowed, ", "))
	}
}

func (r *report) requireRole(role domain.Role, allowed []domain.Role, message string) {
	if !slices.Contains(allowed, role) {
		r.errs = append(r.errs, message)
	}
}

func (r *report) result() domain.ValidationResult {
	return domain.NewValidationResult(r.errs, r.warns)
}

func sameStatus(status domain.Status) domain.ValidationResult {
	return domain.NewValidationResult([]string{fmt.Sprintf("Status is already %s", status)}, nil)
}

func statusOf(data domain.Fields) domain.Status {
	return domain.Status(data.Text(domain.FieldStatus))
}

const day = 24 * time.Hour
