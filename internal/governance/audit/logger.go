package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/pkg/logger"
	"changeflow.io/changeflow/internal/pkg/worker"
)

const writeTimeout = 5 * time.Second

// Dispatcher runs a task off the request path.
type Dispatcher interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// Logger hands records to a sink without blocking the caller.
type Logger struct {
	sink       Sink
	dispatcher Dispatcher
	now        func() time.Time
}

// NewLogger creates an audit Logger. A nil dispatcher writes inline.
func NewLogger(sink Sink, dispatcher Dispatcher) *Logger {
	return &Logger{sink: sink, dispatcher: dispatcher, now: time.Now}
}

// Log fills in id and timestamp and delivers rec. It never fails. Inline
// writes keep ctx values but not its cancellation.
func (l *Logger) Log(ctx context.Context, rec Record) {
	if l == nil || l.sink == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = generateAuditID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}

	if l.dispatcher == nil {
		l.write(context.WithoutCancel(ctx), rec)
		return
	}
	err := l.dispatcher.SubmitDetached(worker.PoolAudit, func(ctx context.Context) {
		l.write(ctx, rec)
	})
	if err != nil {
		logger.Error("Failed to dispatch audit record",
			zap.String("audit_id", rec.ID),
			zap.String("entity_type", string(rec.EntityType)),
			zap.String("entity_id", rec.EntityID),
			zap.Error(err),
		)
	}
}

func (l *Logger) write(ctx context.Context, rec Record) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Audit sink panicked",
				zap.String("audit_id", rec.ID),
				zap.String("panic", fmt.Sprint(p)),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := l.sink.Write(ctx, rec); err != nil {
		logger.Error("Failed to write audit log",
			zap.String("audit_id", rec.ID),
			zap.String("action", rec.Action),
			zap.String("entity_type", string(rec.EntityType)),
			zap.String("entity_id", rec.EntityID),
			zap.Error(err),
		)
	}
}
