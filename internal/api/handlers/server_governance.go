package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/permission"
	"changeflow.io/changeflow/internal/governance/workflow"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
)

// RolePermissionsResponse is the body of GET /governance/permissions/:role.
type RolePermissionsResponse struct {
	Role        domain.Role             `json:"role"`
	Permissions []permission.Permission `json:"permissions"`
}

// WorkflowResponse is the body of GET /governance/workflows/:type.
type WorkflowResponse struct {
	EntityType  domain.EntityType     `json:"entityType"`
	Statuses    []domain.Status       `json:"statuses"`
	Terminal    []domain.Status       `json:"terminal"`
	Transitions []workflow.Transition `json:"transitions"`
}

// ValidateAction handles POST /validations/:type/:action. The body is the
// data the action would be applied to.
func (s *Server) ValidateAction(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	data, ok := bindFields(c)
	if !ok {
		return
	}

	result, err := s.changes.ValidateAction(actor, entityType, c.Param("action"), data)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetRolePermissions handles GET /governance/permissions/:role.
func (s *Server) GetRolePermissions(c *gin.Context) {
	role := domain.ParseRole(c.Param("role"))
	if !role.Valid() {
		_ = c.Error(apperrors.NotFound(apperrors.CodeUnknownRole, fmt.Sprintf("unknown role %q", c.Param("role"))))
		return
	}
	c.JSON(http.StatusOK, RolePermissionsResponse{
		Role:        role,
		Permissions: s.matrix.Permissions(role),
	})
}

// GetWorkflow handles GET /governance/workflows/:type.
func (s *Server) GetWorkflow(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	statuses := domain.Statuses(entityType)
	terminal := []domain.Status{}
	for _, st := range statuses {
		if s.machine.IsTerminal(entityType, st) {
			terminal = append(terminal, st)
		}
	}
	c.JSON(http.StatusOK, WorkflowResponse{
		EntityType:  entityType,
		Statuses:    statuses,
		Terminal:    terminal,
		Transitions: s.machine.Table(entityType),
	})
}
