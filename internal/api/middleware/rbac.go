package middleware

import (
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"

	"changeflow.io/changeflow/internal/domain"
	apperrors "changeflow.io/changeflow/internal/pkg/errors"
)

// RequireRole allows the request through only for the listed roles. Entity
// routes are guarded by the permission matrix instead; this covers the
// operational endpoints that have no entity.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor == nil {
			abortWithError(c, apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required"))
			return
		}
		if !slices.Contains(roles, actor.Role) {
			abortWithError(c, apperrors.Forbidden(apperrors.CodePermissionDenied, "action not permitted").
				WithDetails([]string{fmt.Sprintf("Role %s is not permitted to access this endpoint", actor.Role)}))
			return
		}
		c.Next()
	}
}
