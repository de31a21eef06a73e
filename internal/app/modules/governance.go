package modules

import (
	"context"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/api/handlers"
	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/authz"
	"changeflow.io/changeflow/internal/governance/permission"
	"changeflow.io/changeflow/internal/governance/rules"
	"changeflow.io/changeflow/internal/governance/workflow"
	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/pkg/worker"
	"changeflow.io/changeflow/internal/usecase"
)

// GovernanceModule owns the permission matrix, the workflow machine, the
// rule validator and the change use case built on them.
type GovernanceModule struct {
	infra      *Infrastructure
	matrix     *permission.Matrix
	machine    *workflow.Machine
	authorizer *authz.Authorizer
	changes    *usecase.ChangeUseCase
}

// NewGovernanceModule wires the governance core onto the shared store.
func NewGovernanceModule(infra *Infrastructure) *GovernanceModule {
	matrix := permission.NewMatrix()
	machine := workflow.NewMachine()
	authorizer := authz.NewAuthorizer(infra.Store, matrix, machine, rules.NewValidator(nil), infra.AuditLogger)
	return &GovernanceModule{
		infra:      infra,
		matrix:     matrix,
		machine:    machine,
		authorizer: authorizer,
		changes:    usecase.NewChangeUseCase(infra.Store, authorizer, infra.Events),
	}
}

func (m *GovernanceModule) Name() string { return "governance" }

func (m *GovernanceModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Changes = m.changes
	deps.Matrix = m.matrix
	deps.Machine = m.machine
}

// RegisterEventHandlers logs every committed change off the request path.
func (m *GovernanceModule) RegisterEventHandlers(events *domain.EventDispatcher) {
	for _, t := range []domain.EventType{domain.EventEntityCreated, domain.EventStatusChanged, domain.EventFieldsUpdated} {
		events.Register(t, m.logEvent)
	}
}

func (m *GovernanceModule) logEvent(_ context.Context, event *domain.DomainEvent) error {
	ev := *event
	return m.infra.Pools.SubmitDetached(worker.PoolGeneral, func(context.Context) {
		logger.Info("Change event",
			zap.String("event_id", ev.EventID),
			zap.String("event_type", string(ev.EventType)),
			zap.String("entity_type", string(ev.EntityType)),
			zap.String("entity_id", ev.EntityID),
			zap.String("from", string(ev.From)),
			zap.String("to", string(ev.To)),
			zap.Strings("fields", ev.Fields),
			zap.String("actor_id", ev.ActorID),
			zap.Int64("version", ev.Version),
		)
	})
}

func (m *GovernanceModule) Shutdown(context.Context) error { return nil }
