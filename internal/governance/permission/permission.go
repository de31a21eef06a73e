// Package permission implements the role capability matrix.
//
// Capabilities are data: a table keyed by role that can be read top to bottom
// and extended by adding rows. Lookups never panic and fail closed.
//
// Import Path: changeflow.io/changeflow/internal/governance/permission
package permission

import (
	"slices"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/pkg/logger"
)

// Action is an operation an actor may attempt on an entity.
type Action string

const (
	ActionCreate     Action = "CREATE"
	ActionRead       Action = "READ"
	ActionUpdate     Action = "UPDATE"
	ActionDelete     Action = "DELETE"
	ActionApprove    Action = "APPROVE"
	ActionReject     Action = "REJECT"
	ActionTransition Action = "TRANSITION"
	ActionComment    Action = "COMMENT"
	ActionAssign     Action = "ASSIGN"
	ActionBulk       Action = "BULK_ACTION"
)

var allActions = []Action{
	ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove,
	ActionReject, ActionTransition, ActionComment, ActionAssign, ActionBulk,
}

// AllActions returns every action in declaration order.
func AllActions() []Action {
	return slices.Clone(allActions)
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return slices.Contains(allActions, a)
}

// Conditions restrict when a permission applies. Zero values mean
// "no restriction".
type Conditions struct {
	OwnedOnly          bool            `json:"ownedOnly,omitempty" yaml:"owned_only,omitempty"`
	StatusRestrictions []domain.Status `json:"statusRestrictions,omitempty" yaml:"status_restrictions,omitempty"`
	FieldRestrictions  []string        `json:"fieldRestrictions,omitempty" yaml:"field_restrictions,omitempty"`
	DepartmentOnly     bool            `json:"departmentOnly,omitempty" yaml:"department_only,omitempty"`
}

// Permission grants one action on one entity type.
type Permission struct {
	Entity     domain.EntityType `json:"entity" yaml:"entity"`
	Action     Action            `json:"action" yaml:"action"`
	Conditions *Conditions       `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Ownership carries whether the actor submitted or is assigned to the entity.
type Ownership struct {
	IsOwner bool
}

// StatusFact carries the entity's current status.
type StatusFact struct {
	Current domain.Status
}

// FieldFact names the single field a field-level check is about.
type FieldFact struct {
	Name string
}

// DepartmentFact carries the actor's and the entity's departments.
type DepartmentFact struct {
	User   string
	Entity string
}

// Context holds the per-request facts conditional permissions are evaluated
// against. Each fact is optional; a nil *Context means coarse check only.
type Context struct {
	Ownership  *Ownership
	Status     *StatusFact
	Field      *FieldFact
	Department *DepartmentFact
}

// Matrix is the immutable role capability table.
type Matrix struct {
	table map[domain.Role][]Permission
}

// NewMatrix returns the matrix built from the default table.
func NewMatrix() *Matrix {
	return &Matrix{table: defaultTable()}
}

// Permissions returns a copy of the role's permission list, empty for unknown roles.
func (m *Matrix) Permissions(role domain.Role) []Permission {
	return slices.Clone(m.table[role])
}

func (m *Matrix) lookup(role domain.Role, entity domain.EntityType, action Action) (Permission, bool) {
	perms, ok := m.table[role]
	if !ok {
		logger.Warn("Permission lookup for unknown role",
			zap.String("role", string(role)),
			zap.String("entity", string(entity)),
			zap.String("action", string(action)),
		)
		return Permission{}, false
	}
	for _, p := range perms {
		if p.Entity == entity && p.Action == action {
			return p, true
		}
	}
	return Permission{}, false
}

// HasPermission reports whether role may perform action on entity.
// When ctx is nil only the coarse table lookup is done.
func (m *Matrix) HasPermission(role domain.Role, entity domain.EntityType, action Action, ctx *Context) bool {
	p, ok := m.lookup(role, entity, action)
	if !ok {
		return false
	}
	if p.Conditions == nil || ctx == nil {
		return true
	}
	return conditionsMet(p.Conditions, ctx)
}

func conditionsMet(c *Conditions, ctx *Context) bool {
	if c.OwnedOnly && (ctx.Ownership == nil || !ctx.Ownership.IsOwner) {
		return false
	}
	if len(c.StatusRestrictions) > 0 {
		if ctx.Status == nil || !slices.Contains(c.StatusRestrictions, ctx.Status.Current) {
			return false
		}
	}
	// Field-blind callers get the coarse answer.
	if len(c.FieldRestrictions) > 0 && ctx.Field != nil && ctx.Field.Name != "" {
		if !slices.Contains(c.FieldRestrictions, ctx.Field.Name) {
			return false
		}
	}
	if c.DepartmentOnly && ctx.Department != nil &&
		ctx.Department.User != "" && ctx.Department.Entity != "" &&
		ctx.Department.User != ctx.Department.Entity {
		return false
	}
	return true
}

// AllowedActions lists the actions role may perform on entity, in
// declaration order.
func (m *Matrix) AllowedActions(role domain.Role, entity domain.EntityType, ctx *Context) []Action {
	out := make([]Action, 0, len(allActions))
	if _, known := m.table[role]; !known {
		return out
	}
	for _, a := range allActions {
		if m.HasPermission(role, entity, a, ctx) {
			out = append(out, a)
		}
	}
	return out
}

// FieldFilterResult is the outcome of FilterAllowedFields.
type FieldFilterResult struct {
	Allowed domain.Fields
	// Dropped lists, sorted, the keys removed by the allowlist.
	Dropped []string
}

// FilterAllowedFields applies role's UPDATE field allowlist to fields.
// Without an UPDATE permission nothing is allowed; without field restrictions
// everything is. Dropped fields are reported, not treated as an error.
func (m *Matrix) FilterAllowedFields(role domain.Role, entity domain.EntityType, fields domain.Fields) FieldFilterResult {
	p, ok := m.lookup(role, entity, ActionUpdate)
	if !ok {
		return FieldFilterResult{Allowed: domain.Fields{}, Dropped: fields.Keys()}
	}
	if p.Conditions == nil || len(p.Conditions.FieldRestrictions) == 0 {
		allowed := fields.Clone()
		if allowed == nil {
			allowed = domain.Fields{}
		}
		return FieldFilterResult{Allowed: allowed, Dropped: []string{}}
	}

	allowed := make(domain.Fields, len(fields))
	dropped := []string{}
	for _, k := range fields.Keys() {
		if slices.Contains(p.Conditions.FieldRestrictions, k) {
			allowed[k] = fields[k]
			continue
		}
		dropped = append(dropped, k)
	}
	if len(dropped) > 0 {
		logger.Debug("Update fields dropped by allowlist",
			zap.String("role", string(role)),
			zap.String("entity", string(entity)),
			zap.Strings("dropped", dropped),
		)
	}
	return FieldFilterResult{Allowed: allowed, Dropped: dropped}
}
