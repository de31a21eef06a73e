package handlers

import (
	"github.com/gin-gonic/gin"

	"changeflow.io/changeflow/internal/api/middleware"
	"changeflow.io/changeflow/internal/domain"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
)

// entityTypeParam parses the :type path segment, case-insensitively.
func entityTypeParam(c *gin.Context) (domain.EntityType, bool) {
	t, err := domain.ParseEntityType(c.Param("type"))
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeUnknownEntityType, err.Error()).
			WithParams(map[string]interface{}{"entity_type": c.Param("type")}))
		return "", false
	}
	return t, true
}

// requireActor fails the request with 401 when JWTAuth resolved no actor.
func requireActor(c *gin.Context) (*domain.Actor, bool) {
	actor := middleware.ActorFrom(c)
	if actor == nil {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	return actor, true
}

// bindFields decodes a JSON object body. An empty body is an empty object.
func bindFields(c *gin.Context) (domain.Fields, bool) {
	fields := domain.Fields{}
	if c.Request.ContentLength == 0 {
		return fields, true
	}
	if err := c.ShouldBindJSON(&fields); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequest, "request body must be a JSON object"))
		return nil, false
	}
	return fields, true
}
