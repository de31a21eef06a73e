package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/workflow"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
)

// TransitionRequest is the body of POST /entities/:type/:id/transitions.
type TransitionRequest struct {
	To      string        `json:"to" binding:"required"`
	Changes domain.Fields `json:"changes"`
}

// AcknowledgmentRequest is the body of POST /entities/:type/:id/acknowledgment.
type AcknowledgmentRequest struct {
	Comments string `json:"comments"`
}

// TransitionsResponse is the body of GET /entities/:type/:id/transitions.
type TransitionsResponse struct {
	Status      domain.Status         `json:"status"`
	Transitions []workflow.NextStatus `json:"transitions"`
}

// GetEntityPermissions handles GET /entities/:type/:id/permissions.
func (s *Server) GetEntityPermissions(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	caps, err := s.changes.Capabilities(c.Request.Context(), actor, entityType, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, caps)
}

// GetEntityTransitions handles GET /entities/:type/:id/transitions.
func (s *Server) GetEntityTransitions(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	caps, err := s.changes.Capabilities(c.Request.Context(), actor, entityType, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, TransitionsResponse{Status: caps.Status, Transitions: caps.NextStatuses})
}

// TransitionEntity handles POST /entities/:type/:id/transitions.
func (s *Server) TransitionEntity(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "target status \"to\" is required"))
		return
	}

	out, err := s.changes.Transition(c.Request.Context(), actor, entityType, c.Param("id"),
		domain.Status(req.To), req.Changes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// UpdateEntity handles PATCH /entities/:type/:id. The body is the set of
// field changes.
func (s *Server) UpdateEntity(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	changes, ok := bindFields(c)
	if !ok {
		return
	}

	out, err := s.changes.Update(c.Request.Context(), actor, entityType, c.Param("id"), changes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CreateEntity handles POST /entities/:type.
func (s *Server) CreateEntity(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	fields, ok := bindFields(c)
	if !ok {
		return
	}

	out, err := s.changes.Create(c.Request.Context(), actor, entityType, fields)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// GenerateECN handles POST /entities/ECO/:id/ecn.
func (s *Server) GenerateECN(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	if entityType != domain.EntityECO {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "change notices are generated from change orders"))
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	fields, ok := bindFields(c)
	if !ok {
		return
	}

	out, err := s.changes.GenerateECN(c.Request.Context(), actor, c.Param("id"), fields)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// CheckAcknowledgment handles POST /entities/:type/:id/acknowledgment. It
// reports whether the notice can be acknowledged and any lateness warning.
func (s *Server) CheckAcknowledgment(c *gin.Context) {
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	if entityType != domain.EntityECN {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "only change notices are acknowledged"))
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req AcknowledgmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "invalid request body"))
			return
		}
	}

	result, err := s.changes.CheckAcknowledgment(c.Request.Context(), actor, c.Param("id"), req.Comments)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
