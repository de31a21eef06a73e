package app

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"changeflow.io/changeflow/internal/api/handlers"
	"changeflow.io/changeflow/internal/api/middleware"
	"changeflow.io/changeflow/internal/config"
	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/pkg/logger"
)

// defaultAllowedOrigins are the local frontend dev servers.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), cors.New(buildCORSConfig(cfg)), middleware.ErrorHandler())

	api := router.Group("/api/v1")
	api.GET("/health", server.GetHealth)

	protected := api.Group("", middleware.JWTAuth(jwtCfg))
	server.RegisterRoutes(protected)

	level := protected.Group("/log/level", middleware.RequireRole(domain.RoleAdmin))
	levelHandler := gin.WrapH(logger.LevelHandler())
	level.GET("", levelHandler)
	level.PUT("", levelHandler)

	return router
}

// buildCORSConfig turns the server settings into a cors.Config. A wildcard
// origin is honoured only with UnsafeAllowAllOrigins, which also disables
// credentials. An empty allowlist falls back to the local dev origins.
func buildCORSConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
		return corsCfg
	}

	origins := slices.DeleteFunc(slices.Clone(cfg.Server.AllowedOrigins), func(o string) bool {
		return o == "*" || o == ""
	})
	if len(origins) == 0 {
		origins = slices.Clone(defaultAllowedOrigins)
	}
	corsCfg.AllowOrigins = origins
	return corsCfg
}
