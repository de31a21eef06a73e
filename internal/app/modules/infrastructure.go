package modules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/config"
	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/audit"
	"changeflow.io/changeflow/internal/infrastructure"
	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/pkg/worker"
	"changeflow.io/changeflow/internal/repository"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.Database // nil on the memory driver
	Pools       *worker.Pools
	Store       repository.Store
	AuditLogger *audit.Logger
	Events      *domain.EventDispatcher
}

// NewInfrastructure initializes the store, worker pools and audit pipeline.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	var (
		db    *infrastructure.Database
		store repository.Store
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory entity store, data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		var err error
		db, err = infrastructure.NewDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
		store = repository.NewPostgresStore(db.Pool)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		AuditPoolSize:    cfg.Worker.AuditPoolSize,
		AuditNonblocking: cfg.Worker.AuditNonblocking,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	sink, err := newAuditSink(cfg.Audit.Sink, db)
	if err != nil {
		pools.Shutdown()
		db.Close()
		return nil, err
	}
	logger.Info("Audit sink configured", zap.String("sink", cfg.Audit.Sink))

	return &Infrastructure{
		Config:      cfg,
		DB:          db,
		Pools:       pools,
		Store:       store,
		AuditLogger: audit.NewLogger(sink, pools),
		Events:      domain.NewEventDispatcher(),
	}, nil
}

func newAuditSink(kind string, db *infrastructure.Database) (audit.Sink, error) {
	if kind == config.AuditSinkLog {
		return audit.NewLogSink(), nil
	}
	if db == nil {
		return nil, fmt.Errorf("audit sink %q requires a database", kind)
	}
	switch kind {
	case config.AuditSinkPostgres:
		return audit.NewPostgresSink(db.Pool), nil
	case config.AuditSinkBoth:
		return audit.MultiSink{audit.NewLogSink(), audit.NewPostgresSink(db.Pool)}, nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", kind)
	}
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	i.DB.Close()
}
