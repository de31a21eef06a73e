package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/pkg/logger"
)

// moduleShutdownTimeout bounds each module's Shutdown call.
const moduleShutdownTimeout = 10 * time.Second

// Shutdown stops modules in reverse registration order, then drains the
// worker pools, then closes the database. Pools drain first so queued audit
// records can still reach the database.
func (a *Application) Shutdown() {
	if a == nil {
		return
	}
	for i := len(a.Modules) - 1; i >= 0; i-- {
		mod := a.Modules[i]
		if mod == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), moduleShutdownTimeout)
		err := mod.Shutdown(ctx)
		cancel()
		if err != nil {
			logger.Warn("Module shutdown failed",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
		logger.Info("Worker pools drained")
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
