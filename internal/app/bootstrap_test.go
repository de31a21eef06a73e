package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"changeflow.io/changeflow/internal/api/middleware"
	"changeflow.io/changeflow/internal/config"
	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

const testSecret = "bootstrap-test-secret-0123456789abcdef"

func memoryConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080},
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Log:      config.LogConfig{Level: "error", Format: "json"},
		Audit:    config.AuditConfig{Sink: config.AuditSinkLog},
		Security: config.SecurityConfig{JWTSecret: testSecret, JWTIssuer: "changeflow", TokenTTL: time.Hour},
		Worker:   config.WorkerConfig{GeneralPoolSize: 4, AuditPoolSize: 2},
	}
}

func TestBootstrap_NoDB(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database = config.DatabaseConfig{
		Driver:   config.DriverPostgres,
		Host:     "localhost",
		Port:     65432, // Non-existent port
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app, err := Bootstrap(ctx, cfg)
	require.Error(t, err, "Bootstrap should fail without database")
	assert.Nil(t, app, "Application should be nil on bootstrap failure")
}

func TestBootstrap_PostgresAuditNeedsDatabase(t *testing.T) {
	cfg := memoryConfig()
	cfg.Audit.Sink = config.AuditSinkPostgres

	app, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
}

func TestBootstrap_MemoryEndToEnd(t *testing.T) {
	app, err := Bootstrap(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer app.Shutdown()
	require.Len(t, app.Modules, 1)
	assert.Equal(t, "governance", app.Modules[0].Name())
	assert.Nil(t, app.DB)

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	jwtCfg := middleware.JWTConfig{SigningKey: []byte(testSecret), Issuer: "changeflow", ExpiresIn: time.Hour}
	request := func(role domain.Role, method, path string) int {
		token, _, err := middleware.GenerateToken(jwtCfg, &domain.Actor{ID: "u-1", Role: role}, "")
		require.NoError(t, err)
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, request(domain.RoleViewer, http.MethodGet, "/api/v1/governance/workflows/ECO"))
	assert.Equal(t, http.StatusNotFound, request(domain.RoleViewer, http.MethodGet, "/api/v1/entities/ECO/nope/permissions"))
	assert.Equal(t, http.StatusOK, request(domain.RoleAdmin, http.MethodGet, "/api/v1/log/level"))
	assert.Equal(t, http.StatusForbidden, request(domain.RoleManager, http.MethodGet, "/api/v1/log/level"))
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}
