// Package infrastructure provides database and connection pool setup.
//
// The entity store and the audit sink share one pgxpool.
//
// Import Path: changeflow.io/changeflow/internal/infrastructure
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/config"
	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/repository"
)

// Database owns the shared connection pool.
type Database struct {
	Pool *pgxpool.Pool
}

// NewDatabase creates the shared pool and verifies the connection.
func NewDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	// Date fields are compared in UTC.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &Database{Pool: pool}, nil
}

// AutoMigrate creates the entity and audit tables when missing.
func (d *Database) AutoMigrate(ctx context.Context) error {
	if err := repository.EnsureSchema(ctx, d.Pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("Database schema ensured")
	return nil
}

// Ping reports whether the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	if d == nil || d.Pool == nil {
		return nil
	}
	return d.Pool.Ping(ctx)
}

// Close releases the pool.
func (d *Database) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}
