package diagnostics

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/sentryhive/internal/adapters/apiclient"
	"github.com/oriongate/sentryhive/internal/adapters/throttle"
	"github.com/oriongate/sentryhive/internal/domain"
)

func newTestServer(t *testing.T, debug bool) (*Server, *gin.Engine) {
	t.Helper()
	cfg := apiclient.DefaultConfig()
	cfg.OfflineMode = true
	cfg.SpoolPath = filepath.Join(t.TempDir(), "spool.json")
	client, err := apiclient.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cache := throttle.New(throttle.DefaultConfig(), nil)
	t.Cleanup(func() { cache.Close() })

	s := New(Config{HoneypotID: "test", Version: "1.0.0", DebugMode: debug}, client, cache,
		func() []domain.ModuleStatus { return []domain.ModuleStatus{{Name: "http", Port: 8080, Status: domain.ModuleStatusRunning}} })

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	s.Register(engine)
	return s, engine
}

func TestMonitorReportsModuleStatus(t *testing.T) {
	_, engine := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/monitor", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"http"`)
}

func TestDebugRoutesRequireDebugMode(t *testing.T) {
	_, engine := newTestServer(t, false)

	for _, path := range []string{"/api-diagnostics", "/offline-attacks"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestDebugRoutesAvailableWhenDebugEnabled(t *testing.T) {
	_, engine := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api-diagnostics", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
