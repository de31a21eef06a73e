package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/audit"
	"changeflow.io/changeflow/internal/governance/permission"
	"changeflow.io/changeflow/internal/governance/rules"
	"changeflow.io/changeflow/internal/governance/workflow"
	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/repository"
)

func init() {
	_ = logger.Init("error", "json")
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type brokenLoader struct{}

func (brokenLoader) LoadEntity(context.Context, domain.EntityType, string) (*domain.Entity, error) {
	return nil, errors.New("connection reset")
}

type failingSink struct{}

func (failingSink) Write(context.Context, audit.Record) error { return errors.New("sink down") }

func newTestAuthorizer(t *testing.T, loader EntityLoader, sink audit.Sink) *Authorizer {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	return NewAuthorizer(
		loader,
		permission.NewMatrix(),
		workflow.NewMachine(workflow.WithClock(clock)),
		rules.NewValidator(clock),
		audit.NewLogger(sink, nil),
	)
}

func seed(t *testing.T, store *repository.MemoryStore, e *domain.Entity) *domain.Entity {
	t.Helper()
	created, err := store.CreateEntity(context.Background(), e)
	require.NoError(t, err)
	return created
}

func TestBuildPermissionContext(t *testing.T) {
	entity := &domain.Entity{
		ID: "ecr-1", Type: domain.EntityECR, Status: domain.ECRDraft,
		SubmitterID: "u-1", AssigneeDepartment: "quality",
	}

	pctx := BuildPermissionContext(&domain.Actor{ID: "u-1", Department: "engineering"}, entity, "title")
	require.NotNil(t, pctx)
	assert.True(t, pctx.Ownership.IsOwner)
	assert.Equal(t, domain.ECRDraft, pctx.Status.Current)
	assert.Equal(t, "quality", pctx.Department.Entity)
	assert.Equal(t, "title", pctx.Field.Name)

	pctx = BuildPermissionContext(&domain.Actor{ID: "u-2"}, entity, "")
	assert.False(t, pctx.Ownership.IsOwner)
	assert.Nil(t, pctx.Field)

	assert.Nil(t, BuildPermissionContext(&domain.Actor{ID: "u-1"}, nil, ""))
}

func TestCheckPermission_AuditsEveryCheck(t *testing.T) {
	sink := &audit.MemorySink{}
	a := newTestAuthorizer(t, repository.NewMemoryStore(), sink)
	ctx := context.Background()
	entity := &domain.Entity{ID: "ecr-1", Type: domain.EntityECR, Status: domain.ECRPendingApproval}

	assert.False(t, a.CheckPermission(ctx, &domain.Actor{ID: "eng", Role: domain.RoleEngineer}, domain.EntityECR, entity, permission.ActionApprove, ""))
	assert.True(t, a.CheckPermission(ctx, &domain.Actor{ID: "mgr", Role: domain.RoleManager}, domain.EntityECR, entity, permission.ActionApprove, ""))
	assert.False(t, a.CheckPermission(ctx, nil, domain.EntityECR, entity, permission.ActionRead, ""))

	recs := sink.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "eng", recs[0].ActorID)
	assert.False(t, recs[0].Allowed)
	assert.NotEmpty(t, recs[0].Reasons)
	assert.Equal(t, "ecr-1", recs[0].EntityID)
	assert.Equal(t, "PENDING_APPROVAL", recs[0].Context["status"])
	assert.True(t, recs[1].Allowed)
}

func TestCheckPermission_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	a := newTestAuthorizer(t, repository.NewMemoryStore(), failingSink{})
	entity := &domain.Entity{ID: "ecr-1", Type: domain.EntityECR, Status: domain.ECRPendingApproval}
	assert.True(t, a.CheckPermission(context.Background(), &domain.Actor{ID: "mgr", Role: domain.RoleManager},
		domain.EntityECR, entity, permission.ActionApprove, ""))
}

func TestAuthorize_Errors(t *testing.T) {
	ctx := context.Background()

	a := newTestAuthorizer(t, repository.NewMemoryStore(), &audit.MemorySink{})
	_, err := a.Authorize(ctx, Request{EntityType: domain.EntityECR, EntityID: "x"})
	assert.ErrorIs(t, err, ErrNoActor)

	_, err = a.Authorize(ctx, Request{Actor: &domain.Actor{ID: "u", Role: domain.RoleAdmin}, EntityType: domain.EntityECR, EntityID: "missing"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	a = newTestAuthorizer(t, brokenLoader{}, &audit.MemorySink{})
	_, err = a.Authorize(ctx, Request{Actor: &domain.Actor{ID: "u", Role: domain.RoleAdmin}, EntityType: domain.EntityECR, EntityID: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

func TestAuthorize_ECOCompletion(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a := newTestAuthorizer(t, store, &audit.MemorySink{})
	eco := seed(t, store, &domain.Entity{
		Type: domain.EntityECO, Status: domain.ECOReview, SubmitterID: "mgr",
		Fields: domain.Fields{
			"engineeringApproval":   true,
			"manufacturingApproval": true,
			"actualProgress":        100.0,
			"implementationDate":    "2026-03-01",
			"verificationResults":   "All fifty-plus verification checks passed on the pilot line",
			"qualityGatesPassed":    true,
		},
	})
	quality := &domain.Actor{ID: "qa", Role: domain.RoleQuality}

	// Missing quality approval, and the target date change is outside QUALITY's allowlist.
	d, err := a.Authorize(ctx, Request{
		Actor: quality, EntityType: domain.EntityECO, EntityID: eco.ID,
		Action: permission.ActionTransition, TargetStatus: domain.ECOCompleted,
		Changes: domain.Fields{"targetDate": "2026-06-01"},
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, []string{"Quality approval is required"}, d.Errors)
	assert.Equal(t, []string{"targetDate"}, d.DroppedFields)
	assert.Len(t, d.Warnings, 1)
	require.NotNil(t, d.Rule)

	// Supplying the approval in the same request completes the check.
	d, err = a.Authorize(ctx, Request{
		Actor: quality, EntityType: domain.EntityECO, EntityID: eco.ID,
		Action: permission.ActionTransition, TargetStatus: domain.ECOCompleted,
		Changes: domain.Fields{"qualityApproval": true},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "%v", d.Errors)
	assert.Equal(t, domain.Fields{"qualityApproval": true}, d.AllowedChanges)
	assert.Equal(t, eco.Version, d.Entity.Version)
}

func TestAuthorize_MergesAllComponents(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a := newTestAuthorizer(t, store, &audit.MemorySink{})
	ecr := seed(t, store, &domain.Entity{Type: domain.EntityECR, Status: domain.ECRPendingApproval, SubmitterID: "req"})

	d, err := a.Authorize(ctx, Request{
		Actor:      &domain.Actor{ID: "eng", Role: domain.RoleEngineer},
		EntityType: domain.EntityECR, EntityID: ecr.ID,
		Action: permission.ActionTransition, TargetStatus: domain.ECRApproved,
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// Workflow role check, missing approver, then the approval rules.
	assert.Contains(t, d.Errors, "Approval is required for this transition")
	assert.Contains(t, d.Errors, "Only managers and administrators can approve or reject change requests")
	assert.Contains(t, d.Errors, "Approval comments must be at least 10 characters")
}

func TestAuthorize_UpdateOwnership(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a := newTestAuthorizer(t, store, &audit.MemorySink{})
	ecr := seed(t, store, &domain.Entity{Type: domain.EntityECR, SubmitterID: "req-1"})

	owner := &domain.Actor{ID: "req-1", Role: domain.RoleRequestor}
	d, err := a.Authorize(ctx, Request{
		Actor: owner, EntityType: domain.EntityECR, EntityID: ecr.ID,
		Action: permission.ActionUpdate, Changes: domain.Fields{"title": "Better title"},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "%v", d.Errors)

	other := &domain.Actor{ID: "req-2", Role: domain.RoleRequestor}
	d, err = a.Authorize(ctx, Request{
		Actor: other, EntityType: domain.EntityECR, EntityID: ecr.ID,
		Action: permission.ActionUpdate, Changes: domain.Fields{"title": "Hijacked"},
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Empty(t, d.AllowedChanges)
	assert.Contains(t, d.Errors, "No writable fields in request")

	d, err = a.Authorize(ctx, Request{
		Actor: owner, EntityType: domain.EntityECR, EntityID: ecr.ID,
		Action: permission.ActionUpdate, Changes: domain.Fields{"status": "APPROVED"},
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Errors, "Status can only be changed through a transition")
}

func TestAuthorize_RuleHooks(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a := newTestAuthorizer(t, store, &audit.MemorySink{})
	ecr := seed(t, store, &domain.Entity{Type: domain.EntityECR, SubmitterID: "req", SubmitterDepartment: "quality"})

	var seen *domain.Entity
	hook := func(e *domain.Entity, rctx rules.Context) domain.ValidationResult {
		seen = e
		return a.Validator().ValidateDepartmentAlignment(rctx.Department, e.Department(), rctx.UserRole)
	}
	d, err := a.Authorize(ctx, Request{
		Actor:      &domain.Actor{ID: "mgr", Role: domain.RoleManager, Department: "engineering"},
		EntityType: domain.EntityECR, EntityID: ecr.ID,
		Action: permission.ActionComment, Rules: []RuleFunc{hook},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Len(t, d.Warnings, 1)
	require.NotNil(t, seen)
	assert.Equal(t, ecr.ID, seen.ID)
}

func TestAuthorize_StampedFieldsSatisfyApproval(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a := newTestAuthorizer(t, store, &audit.MemorySink{})
	ecn := seed(t, store, &domain.Entity{Type: domain.EntityECN, Status: domain.ECNPendingApproval, SubmitterID: "eng-1"})
	manager := &domain.Actor{ID: "mgr-1", Role: domain.RoleManager}

	d, err := a.Authorize(ctx, Request{
		Actor: manager, EntityType: domain.EntityECN, EntityID: ecn.ID,
		Action: permission.ActionTransition, TargetStatus: domain.ECNApproved,
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Errors, "Approval is required for this transition")

	d, err = a.Authorize(ctx, Request{
		Actor: manager, EntityType: domain.EntityECN, EntityID: ecn.ID,
		Action: permission.ActionTransition, TargetStatus: domain.ECNApproved,
		Changes: domain.Fields{domain.FieldApproverID: "someone-else"},
		Stamped: domain.Fields{domain.FieldApproverID: manager.ID},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "%v", d.Errors)
	assert.Equal(t, domain.Fields{domain.FieldApproverID: "mgr-1"}, d.AllowedChanges)
	assert.Empty(t, d.DroppedFields)
}
