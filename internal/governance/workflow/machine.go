// Package workflow implements the per-entity status transition tables and
// the checks that gate each edge.
//
// Import Path: changeflow.io/changeflow/internal/governance/workflow
package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/pkg/logger"
)

// Predicate is an edge-specific check over the entity snapshot and the actor.
type Predicate func(entity domain.Fields, actor *domain.Actor, now time.Time) bool

// TransitionConditions are evaluated only when an entity snapshot is given.
type TransitionConditions struct {
	FieldValidations     []string  `json:"fieldValidations,omitempty" yaml:"field_validations,omitempty"`
	RequiresApproval     bool      `json:"requiresApproval,omitempty" yaml:"requires_approval,omitempty"`
	RequiresAllApprovals bool      `json:"requiresAllApprovals,omitempty" yaml:"requires_all_approvals,omitempty"`
	CustomValidation     Predicate `json:"-" yaml:"-"`
	CustomMessage        string    `json:"customMessage,omitempty" yaml:"custom_message,omitempty"`
}

// Transition is one legal (From, To) edge.
type Transition struct {
	From          domain.Status         `json:"from" yaml:"from"`
	To            domain.Status         `json:"to" yaml:"to"`
	RequiredRoles []domain.Role         `json:"requiredRoles" yaml:"required_roles"`
	Conditions    *TransitionConditions `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Description   string                `json:"description" yaml:"description"`
}

// AllowsRole reports whether role may take this edge.
func (t Transition) AllowsRole(role domain.Role) bool {
	return slices.Contains(t.RequiredRoles, role)
}

// TransitionResult is the outcome of ValidateTransition. Rule is set whenever
// the edge exists, even if the role may not take it.
type TransitionResult struct {
	Valid  bool        `json:"valid"`
	Rule   *Transition `json:"rule,omitempty"`
	Errors []string    `json:"errors"`
}

// NextStatus is the display shape of an available edge.
type NextStatus struct {
	Status             domain.Status `json:"status"`
	Description        string        `json:"description"`
	RequiresValidation bool          `json:"requiresValidation"`
}

// Department approval flags checked by RequiresAllApprovals, in report order.
var departmentApprovals = []struct {
	field   string
	message string
}{
	{"qualityApproval", "Quality approval is required"},
	{"engineeringApproval", "Engineering approval is required"},
	{"manufacturingApproval", "Manufacturing approval is required"},
}

const (
	defaultCustomMessage = "Custom validation failed for this transition"
)

// Machine answers transition questions from immutable tables.
type Machine struct {
	tables map[domain.EntityType][]Transition
	now    func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the clock used by time-dependent predicates.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine returns a Machine over the default ECR, ECO and ECN tables.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		tables: defaultTables(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) table(entityType domain.EntityType) []Transition {
	t, ok := m.tables[entityType]
	if !ok {
		logger.Warn("Transition lookup for unknown entity type",
			zap.String("entity_type", string(entityType)),
		)
	}
	return t
}

// Table returns a copy of the transition table of entityType.
func (m *Machine) Table(entityType domain.EntityType) []Transition {
	return slices.Clone(m.tables[entityType])
}

// ValidTransitions returns the edges out of current that role may take.
func (m *Machine) ValidTransitions(entityType domain.EntityType, current domain.Status, role domain.Role) []Transition {
	out := []Transition{}
	for _, t := range m.table(entityType) {
		if t.From == current && t.AllowsRole(role) {
			out = append(out, t)
		}
	}
	return out
}

// NextStatuses is ValidTransitions mapped to the display shape.
func (m *Machine) NextStatuses(entityType domain.EntityType, current domain.Status, role domain.Role) []NextStatus {
	valid := m.ValidTransitions(entityType, current, role)
	out := make([]NextStatus, 0, len(valid))
	for _, t := range valid {
		out = append(out, NextStatus{
			Status:             t.To,
			Description:        t.Description,
			RequiresValidation: t.Conditions != nil,
		})
	}
	return out
}

// IsTerminal reports whether status belongs to entityType and has no
// outgoing edge.
func (m *Machine) IsTerminal(entityType domain.EntityType, status domain.Status) bool {
	if !domain.HasStatus(entityType, status) {
		return false
	}
	for _, t := range m.tables[entityType] {
		if t.From == status {
			return false
		}
	}
	return true
}

// ValidateTransition checks the edge from -> to for role. Entity-dependent
// conditions are evaluated only when entity is non-nil, and every applicable
// check runs so the caller gets the full list of what is missing.
func (m *Machine) ValidateTransition(
	entityType domain.EntityType,
	from, to domain.Status,
	role domain.Role,
	entity domain.Fields,
	actor *domain.Actor,
) TransitionResult {
	var rule *Transition
	for _, t := range m.table(entityType) {
		if t.From == from && t.To == to {
			rule = &t
			break
		}
	}
	if rule == nil {
		return TransitionResult{
			Errors: []string{fmt.Sprintf("Invalid transition from %s to %s", from, to)},
		}
	}

	errs := []string{}
	if !rule.AllowsRole(role) {
		errs = append(errs, fmt.Sprintf("Role %s is not allowed to transition %s from %s to %s", role, entityType, from, to))
	}

	if entity != nil && rule.Conditions != nil {
		errs = append(errs, m.checkConditions(rule.Conditions, entity, actor)...)
	}

	return TransitionResult{
		Valid:  len(errs) == 0,
		Rule:   rule,
		Errors: errs,
	}
}

func (m *Machine) checkConditions(c *TransitionConditions, entity domain.Fields, actor *domain.Actor) []string {
	var errs []string

	for _, name := range c.FieldValidations {
		if !fieldPresent(entity, name) {
			errs = append(errs, fmt.Sprintf("Field '%s' is required for this transition", name))
		}
	}

	if c.CustomValidation != nil && !c.CustomValidation(entity, actor, m.now()) {
		msg := c.CustomMessage
		if msg == "" {
			msg = defaultCustomMessage
		}
		errs = append(errs, msg)
	}

	if c.RequiresApproval && !entity.Truthy(domain.FieldApproverID) {
		errs = append(errs, "Approval is required for this transition")
	}

	if c.RequiresAllApprovals {
		for _, a := range departmentApprovals {
			if !entity.Truthy(a.field) {
				errs = append(errs, a.message)
			}
		}
	}
	return errs
}

// fieldPresent requires the key to exist and, for strings, to be non-blank.
func fieldPresent(entity domain.Fields, name string) bool {
	v, ok := entity[name]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}
