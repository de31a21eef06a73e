// Package handlers implements the HTTP handlers of the change management API.
//
// Handlers only bind input, resolve the actor and translate results; every
// decision is made by the use case and the governance core.
//
// Import Path: changeflow.io/changeflow/internal/api/handlers
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"changeflow.io/changeflow/internal/governance/permission"
	"changeflow.io/changeflow/internal/governance/workflow"
	"changeflow.io/changeflow/internal/usecase"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsSource reports worker pool occupancy.
type MetricsSource interface {
	Metrics() map[string]interface{}
}

// Server holds the handler dependencies.
type Server struct {
	changes *usecase.ChangeUseCase
	matrix  *permission.Matrix
	machine *workflow.Machine
	db      Pinger
	workers MetricsSource
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Changes *usecase.ChangeUseCase
	Matrix  *permission.Matrix
	Machine *workflow.Machine
	// DB is optional; nil when running on the memory store.
	DB      Pinger
	Workers MetricsSource
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		changes: deps.Changes,
		matrix:  deps.Matrix,
		machine: deps.Machine,
		db:      deps.DB,
		workers: deps.Workers,
	}
}

// RegisterRoutes mounts the authenticated routes on rg.
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	entities := rg.Group("/entities")
	entities.POST("/:type", s.CreateEntity)
	entities.PATCH("/:type/:id", s.UpdateEntity)
	entities.GET("/:type/:id/permissions", s.GetEntityPermissions)
	entities.GET("/:type/:id/transitions", s.GetEntityTransitions)
	entities.POST("/:type/:id/transitions", s.TransitionEntity)
	entities.POST("/:type/:id/ecn", s.GenerateECN)
	entities.POST("/:type/:id/acknowledgment", s.CheckAcknowledgment)

	rg.POST("/validations/:type/:action", s.ValidateAction)

	governance := rg.Group("/governance")
	governance.GET("/permissions/:role", s.GetRolePermissions)
	governance.GET("/workflows/:type", s.GetWorkflow)
}
