package listeners

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/adapters/contentrules"
	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// ExcludedPaths are never subject to attack detection or the 404
// handler (§4.1 common session behaviors / §6 diagnostic surface).
var ExcludedPaths = []string{"/monitor", "/api-diagnostics", "/test-heartbeat", "/offline-attacks", "/upload-offline-attacks", "/debug"}

func isExcludedPath(path string) bool {
	for _, p := range ExcludedPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// lureDirectories are paths whose trailing slash elicits a fake
// directory-index page, used to distinguish genuine directory-listing
// probes from ordinary 404s.
var lureDirectories = []string{"/uploads/", "/backup/", "/files/", "/private/"}

// requestWindow tracks excessive-404 and request-rate counts for one
// source address over a short rolling window.
type requestWindow struct {
	mu             sync.Mutex
	notFoundCount  int
	requestCount   int
	windowStart    time.Time
	last404Report  time.Time
	lastRateReport time.Time
}

const (
	requestWindowSize  = 30 * time.Second
	notFoundThreshold  = 20
	rateLimitThreshold = 100
	perAddressCooldown = 60 * time.Second
)

// HTTPListener serves the HTTP (or TLS-wrapped HTTPS) diagnostic/bait
// surface on gin, running content-rule evaluation on every request and
// the generic bruteforce/rapid-connection rules at the
// protocol-independent layer via Shared. The port-scan rule is not
// applied to HTTP.
type HTTPListener struct {
	shared   *Shared
	port     int
	tls      bool
	certFile string
	keyFile  string
	rules    *contentrules.HTTPRules
	srv      *http.Server

	mu      sync.Mutex
	windows map[string]*requestWindow

	registerDiagnostics func(*gin.Engine)
}

// RegisterDiagnostics attaches the diagnostics HTTP surface to this
// listener's gin engine; it must be called before Start. Only the plain
// HTTP listener carries diagnostics routes in practice, but any listener
// built on this type can host them.
func (l *HTTPListener) RegisterDiagnostics(register func(*gin.Engine)) {
	l.registerDiagnostics = register
}

// NewHTTP builds a plaintext HTTP listener bound to port.
func NewHTTP(port int, tr *tracker.Tracker) *HTTPListener {
	return newHTTPListener(port, false, "", "", tr, domain.ProtoHTTP)
}

// NewHTTPS builds a TLS HTTP listener bound to port, using the given
// certificate/key pair.
func NewHTTPS(port int, certFile, keyFile string, tr *tracker.Tracker) *HTTPListener {
	return newHTTPListener(port, true, certFile, keyFile, tr, domain.ProtoHTTPS)
}

func newHTTPListener(port int, isTLS bool, cert, key string, tr *tracker.Tracker, protocol string) *HTTPListener {
	return &HTTPListener{
		port:     port,
		tls:      isTLS,
		certFile: cert,
		keyFile:  key,
		rules:    contentrules.NewHTTPRules(),
		shared:   &Shared{Tracker: tr, Protocol: protocol},
		windows:  make(map[string]*requestWindow),
	}
}

func (l *HTTPListener) Name() string {
	if l.tls {
		return "https"
	}
	return "http"
}
func (l *HTTPListener) Port() int { return l.port }

func (l *HTTPListener) windowFor(addr string) *requestWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[addr]
	if !ok {
		w = &requestWindow{windowStart: time.Now()}
		l.windows[addr] = w
	}
	return w
}

func (l *HTTPListener) detectionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isExcludedPath(path) {
			c.Next()
			return
		}

		addr := c.ClientIP()
		l.shared.checkRapidConnection(addr)

		if finding, ok := l.rules.Evaluate(path, c.Request.URL.RawQuery, c.Request.UserAgent()); ok {
			l.shared.emit(addr, finding.InternalKind, finding.Description, finding.Evidence...)
		}

		l.trackRequestRate(addr)

		c.Next()
	}
}

func (l *HTTPListener) trackRequestRate(addr string) {
	w := l.windowFor(addr)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.Sub(w.windowStart) > requestWindowSize {
		w.windowStart = now
		w.requestCount = 0
		w.notFoundCount = 0
	}
	w.requestCount++

	if w.requestCount >= rateLimitThreshold && now.Sub(w.lastRateReport) >= perAddressCooldown {
		w.lastRateReport = now
		l.shared.emit(addr, "rate_limit_breach", "request rate exceeded threshold", "count="+strconv.Itoa(w.requestCount))
	}
}

func (l *HTTPListener) trackNotFound(addr string) {
	w := l.windowFor(addr)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.notFoundCount++
	if w.notFoundCount >= notFoundThreshold && time.Since(w.last404Report) >= perAddressCooldown {
		w.last404Report = time.Now()
		l.shared.emit(addr, "excessive_404", "repeated requests to nonexistent resources", "count="+strconv.Itoa(w.notFoundCount))
	}
}

func (l *HTTPListener) notFoundHandler(c *gin.Context) {
	path := c.Request.URL.Path
	if isExcludedPath(path) {
		c.Status(http.StatusNotFound)
		return
	}
	l.trackNotFound(c.ClientIP())
	c.String(http.StatusNotFound, "404 page not found")
}

func (l *HTTPListener) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(l.detectionMiddleware())
	engine.NoRoute(l.notFoundHandler)

	for _, dir := range lureDirectories {
		dir := dir
		engine.GET(dir, func(c *gin.Context) {
			l.shared.emit(c.ClientIP(), "directory_listing", "lure directory index requested")
			c.String(http.StatusOK, fakeDirectoryIndex(dir))
		})
	}

	engine.GET("/login", func(c *gin.Context) { c.String(http.StatusOK, loginFormHTML) })
	engine.POST("/login", func(c *gin.Context) {
		addr := c.ClientIP()
		tarpitThenFail()
		l.shared.checkBruteforce(addr, c.PostForm("username"), "http_bruteforce")
		c.String(http.StatusUnauthorized, "Invalid credentials")
	})

	if l.registerDiagnostics != nil {
		l.registerDiagnostics(engine)
	}

	return engine
}

func fakeDirectoryIndex(dir string) string {
	return fmt.Sprintf("<html><body><h1>Index of %s</h1><ul><li>backup.sql</li><li>config.old</li></ul></body></html>", dir)
}

const loginFormHTML = `<html><body><form method="POST" action="/login">
<input name="username"/><input name="password" type="password"/><button>Login</button>
</form></body></html>`

func (l *HTTPListener) Start(ctx context.Context, emit ports.EmitFunc) error {
	l.shared.Emit = emit
	engine := l.buildEngine()
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("%s: listen on %d: %w", l.Name(), l.port, err)
	}
	l.port = ln.Addr().(*net.TCPAddr).Port
	l.srv = &http.Server{Addr: fmt.Sprintf(":%d", l.port), Handler: engine}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if l.tls {
			err = l.srv.ServeTLS(ln, l.certFile, l.keyFile)
		} else {
			err = l.srv.Serve(ln)
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s: listen on %d: %w", l.Name(), l.port, err)
	case <-time.After(100 * time.Millisecond):
	}

	log.Info().Int("port", l.port).Bool("tls", l.tls).Msg("http listener started")
	return nil
}

func (l *HTTPListener) Stop(ctx context.Context) error {
	if l.srv == nil {
		return nil
	}
	return l.srv.Shutdown(ctx)
}
