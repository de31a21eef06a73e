package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/pkg/logger"
)

// LogSink writes records to the structured log.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a LogSink on the "audit" named logger.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Named("audit")}
}

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, rec Record) error {
	s.log.Info("Permission check",
		zap.String("audit_id", rec.ID),
		zap.Time("timestamp", rec.Timestamp),
		zap.String("actor_id", rec.ActorID),
		zap.String("role", string(rec.Role)),
		zap.String("entity_type", string(rec.EntityType)),
		zap.String("entity_id", rec.EntityID),
		zap.String("action", rec.Action),
		zap.Any("context", rec.Context),
		zap.Bool("allowed", rec.Allowed),
		zap.Strings("reasons", rec.Reasons),
	)
	return nil
}

// PostgresSink appends records to the audit_logs table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink returns a sink writing through pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("encode audit context: %w", err)
	}
	reasons := rec.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("encode audit reasons: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO audit_logs (id, created_at, actor_id, role, entity_type, entity_id, action, context, allowed, reasons)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Timestamp, rec.ActorID, string(rec.Role), string(rec.EntityType), rec.EntityID,
		rec.Action, ctxJSON, rec.Allowed, reasonsJSON,
	)
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// Write implements Sink.
func (s *MemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}
