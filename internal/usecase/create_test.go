package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/permission"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
	"changeflow.io/changeflow/internal/repository"
)

func validECNFields() domain.Fields {
	return domain.Fields{
		"title":                   "Bracket revision B release",
		"changesImplemented":      "Bracket material changed to 6061-T6 aluminium",
		"affectedItems":           "BRK-100, BRK-101, ASSY-20",
		"dispositionInstructions": "Scrap revision A stock, rework WIP at station 4",
		"distributionList":        "qa@example.com, mfg@example.com",
		"responseDeadline":        "DAYS_30",
	}
}

func TestCreate(t *testing.T) {
	store := repository.NewMemoryStore()
	uc, rec := newTestUseCase(t, store, store)
	actor := &domain.Actor{ID: "req-1", Role: domain.RoleRequestor, Department: "engineering", OrganizationID: "org-1"}

	fields := draftECR("").Fields
	fields[domain.FieldStatus] = "APPROVED"
	fields[domain.FieldSubmitterID] = "someone-else"

	out, err := uc.Create(context.Background(), actor, domain.EntityECR, fields)
	require.NoError(t, err)
	created := out.Entity
	assert.Equal(t, domain.ECRDraft, created.Status)
	assert.Equal(t, "req-1", created.SubmitterID)
	assert.Equal(t, "engineering", created.SubmitterDepartment)
	assert.Equal(t, "org-1", created.OrganizationID)
	assert.Equal(t, int64(1), created.Version)
	assert.False(t, created.Fields.Has(domain.FieldStatus))
	assert.NotEmpty(t, created.ID)

	loaded, err := store.LoadEntity(context.Background(), domain.EntityECR, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Fields, loaded.Fields)

	require.Len(t, rec.events, 1)
	assert.Equal(t, domain.EventEntityCreated, rec.events[0].EventType)
	assert.Equal(t, created.ID, rec.events[0].EntityID)
}

func TestCreate_Rejections(t *testing.T) {
	store := repository.NewMemoryStore()
	uc, rec := newTestUseCase(t, store, store)

	_, err := uc.Create(context.Background(), &domain.Actor{ID: "v", Role: domain.RoleViewer}, domain.EntityECR, draftECR("").Fields)
	requireAppError(t, err, http.StatusForbidden, apperrors.CodePermissionDenied)

	_, err = uc.Create(context.Background(), &domain.Actor{ID: "r", Role: domain.RoleRequestor}, domain.EntityECR,
		domain.Fields{"title": "Fix", "priority": "URGENT"})
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity, apperrors.CodeValidationFailed)
	assert.Contains(t, appErr.Details, "Title must be at least 5 characters")
	assert.Contains(t, appErr.Details, "Priority must be one of LOW, MEDIUM, HIGH, CRITICAL")

	_, err = uc.Create(context.Background(), nil, domain.EntityECR, nil)
	requireAppError(t, err, http.StatusUnauthorized, apperrors.CodeUnauthorized)

	assert.Empty(t, rec.events)
}

func TestGenerateECN(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	uc, _ := newTestUseCase(t, store, store)
	eco := completableECO()
	eco.Status = domain.ECOCompleted
	eco = seedEntity(t, store, eco)
	docs := &domain.Actor{ID: "dc", Role: domain.RoleDocumentControl}

	out, err := uc.GenerateECN(ctx, docs, eco.ID, validECNFields())
	require.NoError(t, err)
	ecn := out.Entity
	assert.Equal(t, domain.EntityECN, ecn.Type)
	assert.Equal(t, domain.ECNDraft, ecn.Status)
	assert.Equal(t, eco.ID, ecn.Fields.Text(FieldECOID))

	linked, err := store.LoadEntity(ctx, domain.EntityECO, eco.ID)
	require.NoError(t, err)
	assert.Equal(t, ecn.ID, linked.Fields.Text(FieldECNID))

	_, err = uc.GenerateECN(ctx, docs, eco.ID, validECNFields())
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity, apperrors.CodeValidationFailed)
	assert.Equal(t, []string{"An ECN already exists for this ECO"}, appErr.Details)
}

func TestGenerateECN_Rejections(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	uc, _ := newTestUseCase(t, store, store)
	eco := seedEntity(t, store, completableECO())

	_, err := uc.GenerateECN(ctx, &domain.Actor{ID: "dc", Role: domain.RoleDocumentControl}, eco.ID, validECNFields())
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity, apperrors.CodeValidationFailed)
	assert.Equal(t, []string{"ECO must be COMPLETED before an ECN can be generated, current status is REVIEW"}, appErr.Details)

	_, err = uc.GenerateECN(ctx, &domain.Actor{ID: "m", Role: domain.RoleManager}, eco.ID, validECNFields())
	requireAppError(t, err, http.StatusForbidden, apperrors.CodePermissionDenied)

	_, err = uc.GenerateECN(ctx, &domain.Actor{ID: "dc", Role: domain.RoleDocumentControl}, "missing", validECNFields())
	requireAppError(t, err, http.StatusNotFound, apperrors.CodeEntityNotFound)

	unchanged, err := store.LoadEntity(ctx, domain.EntityECO, eco.ID)
	require.NoError(t, err)
	assert.Equal(t, eco.Version, unchanged.Version)
}

// flakyCreateStore fails the next failures CreateEntity calls.
type flakyCreateStore struct {
	*repository.MemoryStore
	failures int
}

var errInsertFailed = errors.New("insert failed")

func (s *flakyCreateStore) CreateEntity(ctx context.Context, e *domain.Entity) (*domain.Entity, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errInsertFailed
	}
	return s.MemoryStore.CreateEntity(ctx, e)
}

func TestGenerateECN_CreateFailureUnlinksOrder(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	eco := completableECO()
	eco.Status = domain.ECOCompleted
	eco = seedEntity(t, mem, eco)
	store := &flakyCreateStore{MemoryStore: mem, failures: 1}
	uc, rec := newTestUseCase(t, store, store)
	docs := &domain.Actor{ID: "dc", Role: domain.RoleDocumentControl}

	_, err := uc.GenerateECN(ctx, docs, eco.ID, validECNFields())
	appErr := requireAppError(t, err, http.StatusInternalServerError, apperrors.CodeInternal)
	assert.ErrorIs(t, appErr, errInsertFailed)
	assert.Empty(t, rec.events)

	unlinked, err := mem.LoadEntity(ctx, domain.EntityECO, eco.ID)
	require.NoError(t, err)
	assert.False(t, unlinked.Fields.Has(FieldECNID))

	out, err := uc.GenerateECN(ctx, docs, eco.ID, validECNFields())
	require.NoError(t, err)
	linked, err := mem.LoadEntity(ctx, domain.EntityECO, eco.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Entity.ID, linked.Fields.Text(FieldECNID))
}

func TestGenerateECN_RequiresReadOnOrder(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	uc, _, sink := newAuditedUseCase(t, store, store)
	eco := completableECO()
	eco.Status = domain.ECOCompleted
	eco = seedEntity(t, store, eco)

	_, err := uc.GenerateECN(ctx, &domain.Actor{ID: "x", Role: domain.Role("CONTRACTOR")}, eco.ID, validECNFields())
	appErr := requireAppError(t, err, http.StatusForbidden, apperrors.CodePermissionDenied)
	assert.Equal(t, []string{"Role CONTRACTOR is not permitted to READ this ECO"}, appErr.Details)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, string(permission.ActionRead), records[0].Action)
	assert.Equal(t, domain.EntityECO, records[0].EntityType)
	assert.Equal(t, eco.ID, records[0].EntityID)
	assert.False(t, records[0].Allowed)

	_, err = uc.GenerateECN(ctx, &domain.Actor{ID: "dc", Role: domain.RoleDocumentControl}, eco.ID, validECNFields())
	require.NoError(t, err)
	var readChecks int
	for _, r := range sink.Records() {
		if r.EntityType == domain.EntityECO && r.Action == string(permission.ActionRead) && r.Allowed {
			readChecks++
		}
	}
	assert.Equal(t, 1, readChecks)
}
