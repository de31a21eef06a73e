package domain

import (
	"fmt"
	"strings"
)

// EntityType identifies one of the three linked change entities.
type EntityType string

const (
	EntityECR EntityType = "ECR" // Engineering Change Request
	EntityECO EntityType = "ECO" // Engineering Change Order
	EntityECN EntityType = "ECN" // Engineering Change Notice
)

// AllEntityTypes returns ECR, ECO and ECN in lifecycle order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityECR, EntityECO, EntityECN}
}

// ParseEntityType accepts "ecr", "ECR", " Eco " and so on.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case EntityECR, EntityECO, EntityECN:
		return t, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", s)
	}
}

func (t EntityType) String() string { return string(t) }

// Status is an entity lifecycle status. Each entity type has its own set.
type Status string

// ECR statuses.
const (
	ECRDraft           Status = "DRAFT"
	ECRSubmitted       Status = "SUBMITTED"
	ECRUnderReview     Status = "UNDER_REVIEW"
	ECRInAnalysis      Status = "IN_ANALYSIS"
	ECRPendingApproval Status = "PENDING_APPROVAL"
	ECRApproved        Status = "APPROVED"
	ECRRejected        Status = "REJECTED"
	ECRCancelled       Status = "CANCELLED"
	ECRImplemented     Status = "IMPLEMENTED"
	ECRConverted       Status = "CONVERTED"
)

// ECO statuses.
const (
	ECODraft      Status = "DRAFT"
	ECOPlanning   Status = "PLANNING"
	ECOBacklog    Status = "BACKLOG"
	ECOApproved   Status = "APPROVED"
	ECOInProgress Status = "IN_PROGRESS"
	ECOOnHold     Status = "ON_HOLD"
	ECOReview     Status = "REVIEW"
	ECOCompleted  Status = "COMPLETED"
	ECOCancelled  Status = "CANCELLED"
)

// ECN statuses.
const (
	ECNDraft           Status = "DRAFT"
	ECNPendingApproval Status = "PENDING_APPROVAL"
	ECNApproved        Status = "APPROVED"
	ECNDistributed     Status = "DISTRIBUTED"
	ECNEffective       Status = "EFFECTIVE"
	ECNCancelled       Status = "CANCELLED"

	// ECNPendingDistribution is the legacy name of the pre-distribution
	// status. It is not part of the ECN transition table.
	ECNPendingDistribution Status = "PENDING_DISTRIBUTION"
)

var statusSets = map[EntityType][]Status{
	EntityECR: {
		ECRDraft, ECRSubmitted, ECRUnderReview, ECRInAnalysis, ECRPendingApproval,
		ECRApproved, ECRRejected, ECRCancelled, ECRImplemented, ECRConverted,
	},
	EntityECO: {
		ECODraft, ECOPlanning, ECOBacklog, ECOApproved, ECOInProgress,
		ECOOnHold, ECOReview, ECOCompleted, ECOCancelled,
	},
	EntityECN: {
		ECNDraft, ECNPendingApproval, ECNApproved, ECNDistributed, ECNEffective, ECNCancelled,
	},
}

// Statuses returns the status enumeration of t, nil for an unknown type.
func Statuses(t EntityType) []Status {
	set := statusSets[t]
	if set == nil {
		return nil
	}
	out := make([]Status, len(set))
	copy(out, set)
	return out
}

// HasStatus reports whether s belongs to the status enumeration of t.
func HasStatus(t EntityType, s Status) bool {
	for _, candidate := range statusSets[t] {
		if candidate == s {
			return true
		}
	}
	return false
}

// Well-known snapshot keys. Everything else lives in Entity.Fields.
const (
	FieldStatus      = "status"
	FieldSubmitterID = "submitterId"
	FieldAssigneeID  = "assigneeId"
)

// Keys stamped by the server on transitions. Callers cannot supply them.
const (
	FieldApproverID    = "approverId"
	FieldApprovedAt    = "approvedAt"
	FieldDistributedAt = "distributedAt"
)

// Entity is a point-in-time snapshot handed to the core by the caller.
// The core never mutates it and never assumes it is still current.
type Entity struct {
	ID                  string     `json:"id"`
	Type                EntityType `json:"type"`
	Status              Status     `json:"status"`
	SubmitterID         string     `json:"submitter_id,omitempty"`
	AssigneeID          string     `json:"assignee_id,omitempty"`
	SubmitterDepartment string     `json:"submitter_department,omitempty"`
	AssigneeDepartment  string     `json:"assignee_department,omitempty"`
	OrganizationID      string     `json:"organization_id,omitempty"`
	Version             int64      `json:"version"`
	Fields              Fields     `json:"fields,omitempty"`
}

// Snapshot returns a flat view used for transition condition evaluation.
// Owner keys are only filled when set; status always is.
func (e *Entity) Snapshot() Fields {
	if e == nil {
		return nil
	}
	out := e.Fields.Clone()
	if out == nil {
		out = Fields{}
	}
	out[FieldStatus] = string(e.Status)
	if e.SubmitterID != "" {
		out[FieldSubmitterID] = e.SubmitterID
	}
	if e.AssigneeID != "" {
		out[FieldAssigneeID] = e.AssigneeID
	}
	return out
}

// Department returns the owning department: the submitter's, falling back to
// the assignee's.
func (e *Entity) Department() string {
	if e == nil {
		return ""
	}
	if e.SubmitterDepartment != "" {
		return e.SubmitterDepartment
	}
	return e.AssigneeDepartment
}

// IsOwnedBy reports whether actorID submitted or is assigned to the entity.
func (e *Entity) IsOwnedBy(actorID string) bool {
	if e == nil || actorID == "" {
		return false
	}
	return e.SubmitterID == actorID || e.AssigneeID == actorID
}
