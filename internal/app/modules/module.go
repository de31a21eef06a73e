// Package modules contains the dependency modules wired by the composition root.
//
// Import Path: changeflow.io/changeflow/internal/app/modules
package modules

import (
	"context"

	"changeflow.io/changeflow/internal/api/handlers"
	"changeflow.io/changeflow/internal/domain"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterEventHandlers subscribes the module to committed change events.
	RegisterEventHandlers(*domain.EventDispatcher)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}
