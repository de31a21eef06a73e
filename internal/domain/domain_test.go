package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"changeflow.io/changeflow/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestRoleHierarchy(t *testing.T) {
	assert.Equal(t, 1, RoleViewer.Level())
	assert.Equal(t, 7, RoleAdmin.Level())
	assert.Equal(t, 0, Role("GUEST").Level())

	for _, r := range AllRoles() {
		assert.True(t, r.Valid(), "role %s should be valid", r)
		assert.GreaterOrEqual(t, r.Level(), 1)
		assert.LessOrEqual(t, r.Level(), 7)
	}
	assert.Len(t, AllRoles(), 8)
}

func TestCanAssign(t *testing.T) {
	tests := []struct {
		name     string
		actor    Role
		assignee Role
		want     bool
	}{
		{"manager delegates to engineer", RoleManager, RoleEngineer, true},
		{"engineer cannot delegate to manager", RoleEngineer, RoleManager, false},
		{"peers can delegate", RoleQuality, RoleManufacturing, true},
		{"unknown actor denied", Role("GUEST"), RoleViewer, false},
		{"unknown assignee denied", RoleAdmin, Role("GUEST"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAssign(tt.actor, tt.assignee))
		})
	}
}

func TestParseEntityType(t *testing.T) {
	got, err := ParseEntityType(" eco ")
	require.NoError(t, err)
	assert.Equal(t, EntityECO, got)

	_, err = ParseEntityType("ticket")
	require.Error(t, err)
}

func TestHasStatus(t *testing.T) {
	assert.True(t, HasStatus(EntityECR, ECRInAnalysis))
	assert.False(t, HasStatus(EntityECN, ECRInAnalysis))
	assert.False(t, HasStatus(EntityECN, ECNPendingDistribution))
	assert.Nil(t, Statuses(EntityType("XYZ")))
}

func TestEntitySnapshotAndOwnership(t *testing.T) {
	e := &Entity{
		ID:                 "ecr-1",
		Type:               EntityECR,
		Status:             ECRDraft,
		SubmitterID:        "u-1",
		AssigneeID:         "u-2",
		AssigneeDepartment: "engineering",
		Fields:             Fields{"title": "Replace fastener"},
	}

	snap := e.Snapshot()
	assert.Equal(t, "DRAFT", snap[FieldStatus])
	assert.Equal(t, "u-1", snap[FieldSubmitterID])
	assert.Equal(t, "Replace fastener", snap["title"])
	_, leaked := e.Fields[FieldStatus]
	assert.False(t, leaked, "Snapshot must not mutate entity fields")

	assert.True(t, e.IsOwnedBy("u-1"))
	assert.True(t, e.IsOwnedBy("u-2"))
	assert.False(t, e.IsOwnedBy("u-3"))
	assert.False(t, e.IsOwnedBy(""))
	assert.Equal(t, "engineering", e.Department())
}

func TestFieldsAccessors(t *testing.T) {
	f := Fields{
		"cost":    float64(1200),
		"count":   3,
		"text":    "  hello ",
		"blank":   "   ",
		"flag":    true,
		"date":    "2025-01-01",
		"stamp":   "2025-01-01T10:00:00Z",
		"numeric": "42.5",
	}

	n, ok := f.Float("cost")
	require.True(t, ok)
	assert.Equal(t, 1200.0, n)
	n, ok = f.Float("count")
	require.True(t, ok)
	assert.Equal(t, 3.0, n)
	n, ok = f.Float("numeric")
	require.True(t, ok)
	assert.Equal(t, 42.5, n)

	assert.Equal(t, "hello", f.Text("text"))
	assert.True(t, f.Truthy("text"))
	assert.False(t, f.Truthy("blank"))
	assert.False(t, f.Truthy("missing"))
	assert.True(t, f.Bool("flag"))

	d, ok := f.Time("date")
	require.True(t, ok)
	assert.Equal(t, 2025, d.Year())
	ts, ok := f.Time("stamp")
	require.True(t, ok)
	assert.Equal(t, 10, ts.Hour())

	assert.Equal(t, []string{"blank", "cost", "count", "date", "flag", "numeric", "stamp", "text"}, f.Keys())
}

func TestCombine(t *testing.T) {
	r1 := NewValidationResult([]string{"a", "b"}, []string{"w1"})
	r2 := NewValidationResult([]string{"b", "c"}, []string{"w1", "w2"})
	ok := Valid()

	got := Combine(r1, r2)
	assert.False(t, got.IsValid)
	assert.Equal(t, []string{"a", "b", "c"}, got.Errors)
	assert.Equal(t, []string{"w1", "w2"}, got.Warnings)

	both := Combine(ok, NewValidationResult(nil, []string{"advice"}))
	assert.True(t, both.IsValid)
	assert.Equal(t, []string{"advice"}, both.Warnings)

	assert.True(t, Combine().IsValid)
}

func TestEventDispatcher(t *testing.T) {
	d := NewEventDispatcher()
	var calls []string
	d.Register(EventStatusChanged, func(_ context.Context, e *DomainEvent) error {
		calls = append(calls, "first:"+string(e.To))
		return errors.New("boom")
	})
	d.Register(EventStatusChanged, func(_ context.Context, e *DomainEvent) error {
		calls = append(calls, "second:"+string(e.To))
		return nil
	})

	err := d.Dispatch(context.Background(), &DomainEvent{
		EventID:   "ev-1",
		EventType: EventStatusChanged,
		To:        ECRSubmitted,
		CreatedAt: time.Now(),
	})
	require.Error(t, err)
	assert.EqualError(t, err, "STATUS_CHANGED subscriber 0: boom")
	assert.Equal(t, []string{"first:SUBMITTED", "second:SUBMITTED"}, calls)

	require.NoError(t, d.Dispatch(context.Background(), &DomainEvent{EventType: EventFieldsUpdated}))
}
