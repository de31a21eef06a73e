// Package domain provides the core change-management types shared by the
// permission matrix, the workflow state machine and the business rules.
//
// Import Path: changeflow.io/changeflow/internal/domain
package domain

import "strings"

// Role is the capability tag carried by an actor for the duration of a request.
type Role string

const (
	RoleRequestor       Role = "REQUESTOR"
	RoleEngineer        Role = "ENGINEER"
	RoleQuality         Role = "QUALITY"
	RoleManufacturing   Role = "MANUFACTURING"
	RoleManager         Role = "MANAGER"
	RoleDocumentControl Role = "DOCUMENT_CONTROL"
	RoleAdmin           Role = "ADMIN"
	RoleViewer          Role = "VIEWER"
)

var allRoles = []Role{
	RoleRequestor,
	RoleEngineer,
	RoleQuality,
	RoleManufacturing,
	RoleManager,
	RoleDocumentControl,
	RoleAdmin,
	RoleViewer,
}

// roleLevels is the delegation hierarchy. It is used for assignment checks
// only and never short-circuits a permission lookup.
var roleLevels = map[Role]int{
	RoleViewer:          1,
	RoleRequestor:       2,
	RoleEngineer:        3,
	RoleQuality:         4,
	RoleManufacturing:   4,
	RoleDocumentControl: 5,
	RoleManager:         6,
	RoleAdmin:           7,
}

// AllRoles returns every known role in declaration order.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the hierarchy level, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

func (r Role) String() string { return string(r) }

// ParseRole normalizes s (case-insensitive) into a Role. Unknown values are
// returned as-is so callers can fail closed on them.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// CanAssign reports whether actor may delegate work to someone holding assignee.
func CanAssign(actor, assignee Role) bool {
	if !actor.Valid() || !assignee.Valid() {
		return false
	}
	return actor.Level() >= assignee.Level()
}

// Actor is the resolved identity of the caller. This package never
// authenticates; the HTTP layer resolves it before any check runs.
type Actor struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	Department     string `json:"department,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}
