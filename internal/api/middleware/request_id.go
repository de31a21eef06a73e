package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"changeflow.io/changeflow/internal/domain"
)

type contextKey string

const (
	// RequestIDHeader is the HTTP header for request tracing.
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID contextKey = "request_id"
	ctxKeyActorCtx  contextKey = "actor"

	// gin context keys
	ctxKeyActor    = "actor"
	ctxKeyUsername = "username"
)

// RequestID injects a unique request ID into the context and response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			if id, err := uuid.NewV7(); err == nil {
				rid = id.String()
			} else {
				rid = uuid.NewString()
			}
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), ctxKeyRequestID, rid),
		)
		c.Next()
	}
}

// GetRequestID extracts request ID from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// SetActor stores the authenticated actor in ctx.
func SetActor(ctx context.Context, actor *domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActorCtx, actor)
}

// GetActor extracts the authenticated actor from ctx, nil when absent.
func GetActor(ctx context.Context) *domain.Actor {
	if v, ok := ctx.Value(ctxKeyActorCtx).(*domain.Actor); ok {
		return v
	}
	return nil
}

// ActorFrom returns the actor stored by JWTAuth on the gin context.
func ActorFrom(c *gin.Context) *domain.Actor {
	if v, ok := c.Get(ctxKeyActor); ok {
		if actor, ok := v.(*domain.Actor); ok {
			return actor
		}
	}
	return GetActor(c.Request.Context())
}
