package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/pkg/logger"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Checks  map[string]string      `json:"checks,omitempty"`
	Workers map[string]interface{} `json:"workers,omitempty"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if s.workers != nil {
		resp.Workers = s.workers.Metrics()
	}
	if s.db == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	if err := s.db.Ping(c.Request.Context()); err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		resp.Status = "degraded"
		resp.Checks = map[string]string{"database": "error"}
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp.Checks = map[string]string{"database": "ok"}
	c.JSON(http.StatusOK, resp)
}
