// Package diagnostics implements the /monitor, /api-diagnostics,
// /test-heartbeat, /offline-attacks, and /upload-offline-attacks HTTP
// surface (§6), mounted on the same gin engine as the HTTP listener and
// excluded from attack detection.
package diagnostics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oriongate/sentryhive/internal/adapters/apiclient"
	"github.com/oriongate/sentryhive/internal/adapters/throttle"
	"github.com/oriongate/sentryhive/internal/domain"
)

// Config carries the process-lifetime facts the diagnostics surface
// reports but never mutates (id, version, endpoint, debug/offline flags).
type Config struct {
	HoneypotID  string
	Version     string
	APIEndpoint string
	OfflineMode bool
	DebugMode   bool
}

// ModuleStatusFunc returns a fresh snapshot of every supervised module's
// health, supplied by the supervisor.
type ModuleStatusFunc func() []domain.ModuleStatus

// Server wires the diagnostics routes onto a gin engine. It holds no
// listener of its own: it is mounted on the HTTP listener's *gin.Engine
// by the supervisor during startup.
type Server struct {
	cfg          Config
	startTime    time.Time
	client       *apiclient.Client
	cache        *throttle.Cache
	moduleStatus ModuleStatusFunc
}

// New builds a diagnostics server bound to the given report sink and
// throttle cache, reporting module health via statusFn.
func New(cfg Config, client *apiclient.Client, cache *throttle.Cache, statusFn ModuleStatusFunc) *Server {
	return &Server{cfg: cfg, startTime: time.Now(), client: client, cache: cache, moduleStatus: statusFn}
}

// Register mounts every diagnostics route on engine. Debug-only routes
// (/api-diagnostics, /offline-attacks, /upload-offline-attacks) are
// registered unconditionally but return 404 when DebugMode is false,
// matching the detection-middleware's unconditional exclusion of their
// paths regardless of whether debug mode is on.
func (s *Server) Register(engine *gin.Engine) {
	engine.GET("/monitor", s.handleMonitor)
	engine.GET("/test-heartbeat", s.handleTestHeartbeat)
	engine.GET("/api-diagnostics", s.requireDebug(s.handleAPIDiagnostics))
	engine.GET("/offline-attacks", s.requireDebug(s.handleOfflineAttacks))
	engine.POST("/upload-offline-attacks", s.requireDebug(s.handleUploadOfflineAttacks))
}

func (s *Server) requireDebug(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.DebugMode {
			c.Status(http.StatusNotFound)
			return
		}
		h(c)
	}
}

type monitorAPI struct {
	Endpoint      string    `json:"endpoint"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	OfflineMode   bool      `json:"offlineMode"`
}

type monitorHoneypot struct {
	ID      string                `json:"id"`
	Version string                `json:"version"`
	Uptime  float64               `json:"uptime"`
	API     monitorAPI            `json:"api"`
	Modules []domain.ModuleStatus `json:"modules"`
}

func (s *Server) handleMonitor(c *gin.Context) {
	diag := s.client.Diagnostics()
	c.JSON(http.StatusOK, gin.H{
		"honeypot": monitorHoneypot{
			ID:      s.cfg.HoneypotID,
			Version: s.cfg.Version,
			Uptime:  time.Since(s.startTime).Seconds(),
			API: monitorAPI{
				Endpoint:      s.cfg.APIEndpoint,
				LastHeartbeat: diag.LastSuccess,
				OfflineMode:   s.cfg.OfflineMode,
			},
			Modules: s.moduleStatus(),
		},
	})
}

func (s *Server) handleTestHeartbeat(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	err := s.client.SendHeartbeat(ctx)
	result := gin.H{"diagnostics": s.client.Diagnostics()}
	if err != nil {
		result["success"] = false
		result["error"] = err.Error()
		c.JSON(http.StatusOK, result)
		return
	}
	result["success"] = true
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAPIDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": gin.H{
			"honeypotId":  s.cfg.HoneypotID,
			"apiEndpoint": s.cfg.APIEndpoint,
			"offlineMode": s.cfg.OfflineMode,
			"debugMode":   s.cfg.DebugMode,
		},
		"heartbeat":  s.client.Diagnostics(),
		"cacheStats": s.cache.Stats(),
		"spoolDepth": s.client.SpoolDepth(),
	})
}

func (s *Server) handleOfflineAttacks(c *gin.Context) {
	entries, err := s.client.PendingSpoolEntries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) handleUploadOfflineAttacks(c *gin.Context) {
	uploaded, remaining, err := s.client.ReplayNow(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploaded": uploaded, "remaining": remaining})
}
