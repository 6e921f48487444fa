package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/adapters/apiclient"
	"github.com/oriongate/sentryhive/internal/adapters/classification"
	"github.com/oriongate/sentryhive/internal/adapters/diagnostics"
	"github.com/oriongate/sentryhive/internal/adapters/listeners"
	"github.com/oriongate/sentryhive/internal/adapters/output"
	"github.com/oriongate/sentryhive/internal/adapters/reputation"
	"github.com/oriongate/sentryhive/internal/adapters/throttle"
	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// moduleEntry pairs a running listener with the mutable status the
// supervisor reports to /monitor.
type moduleEntry struct {
	listener ports.ProtocolListener
	status   domain.ModuleStatus
}

// Supervisor owns the process lifecycle (C5): it builds every adapter
// from a resolved Config, starts the enabled protocol listeners, wires
// the diagnostics HTTP surface onto the plain HTTP listener, runs the
// heartbeat/replay background loops, tracks per-module health for
// /monitor, and drives graceful shutdown on SIGINT/SIGTERM. Grounded on
// internal/app/analyzer.go's Start/WaitForSignal/Stop shape, generalized
// from "one reader, one worker pool" to "N independently-failable
// listeners feeding one pipeline".
type Supervisor struct {
	cfg Config

	tracker      *tracker.Tracker
	cache        *throttle.Cache
	reputation   *reputation.Store
	client       *apiclient.Client
	classifier   *classification.Adapter
	attackLog    *output.AttackLog
	ringBuffer   *output.RingBuffer
	metrics      *output.PrometheusMetrics
	lureWatcher  *LureWatcher
	pipeline     *Pipeline
	consoleFeed  ports.AttackObserver

	mu      sync.Mutex
	modules map[string]*moduleEntry

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSupervisor builds every adapter described by cfg but starts
// nothing; call Start to bring the process up. consoleFeed, when
// non-nil, additionally receives every canonical record for the optional
// --console TUI.
func NewSupervisor(cfg Config, consoleFeed ports.AttackObserver) (*Supervisor, error) {
	s := &Supervisor{cfg: cfg, modules: make(map[string]*moduleEntry), consoleFeed: consoleFeed}

	s.tracker = tracker.New(tracker.DefaultConfig())

	throttleCfg := throttle.DefaultConfig()
	throttleCfg.TTL = cfg.IPCacheTTL
	throttleCfg.MaxReportsPerIP = cfg.MaxReportsPerIP
	throttleCfg.ReportUniqueTypesOnly = cfg.ReportUniqueTypesOnly
	throttleCfg.StoreThrottledAttacks = cfg.StoreThrottledAttacks

	apiCfg := apiclient.DefaultConfig()
	apiCfg.HoneypotID = cfg.HoneypotID
	apiCfg.APIKey = cfg.APIKey
	apiCfg.Endpoint = cfg.APIEndpoint
	apiCfg.OfflineMode = cfg.OfflineMode
	apiCfg.DebugMode = cfg.DebugMode
	apiCfg.HeartbeatInterval = cfg.HeartbeatInterval
	apiCfg.HeartbeatRetryCount = cfg.HeartbeatRetryCount
	apiCfg.HeartbeatRetryDelay = cfg.HeartbeatRetryDelay
	apiCfg.ReportTimeout = cfg.ReportTimeout
	apiCfg.SpoolPath = cfg.SpoolPath
	apiCfg.SpoolClearOnStart = cfg.SpoolClearOnStart
	apiCfg.ReplayInterval = cfg.ReplayInterval

	client, err := apiclient.New(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("supervisor: build api client: %w", err)
	}
	s.client = client

	suppressToSpool := func(rec domain.CanonicalAttackRecord) {
		if err := client.SpoolSuppressed(rec); err != nil {
			log.Warn().Err(err).Msg("failed to spool suppressed record")
		}
	}
	s.cache = throttle.New(throttleCfg, suppressToSpool)

	repStore, err := reputation.Open(reputation.DefaultConfig())
	if err != nil {
		log.Warn().Err(err).Msg("reputation store unavailable, frequency hints disabled")
	} else {
		s.reputation = repStore
	}

	s.classifier = classification.New()

	attackLog, err := output.NewAttackLog("logs/attacks.json", "logs/suspicious.json")
	if err != nil {
		return nil, fmt.Errorf("supervisor: open attack log: %w", err)
	}
	s.attackLog = attackLog
	s.ringBuffer = output.NewRingBuffer(500)

	if cfg.MetricsEnabled {
		s.metrics = output.NewPrometheusMetrics("sentryhive")
	}

	s.lureWatcher = NewLureWatcher(cfg.LureDir)

	observers := []ports.AttackObserver{s.attackLog, s.ringBuffer}
	if s.consoleFeed != nil {
		observers = append(observers, s.consoleFeed)
	}

	var reputationPort ports.ReputationStore
	if s.reputation != nil {
		reputationPort = s.reputation
	}

	var metricsPort ports.MetricsCollector
	if s.metrics != nil {
		metricsPort = s.metrics
	}

	s.pipeline = NewPipeline(DefaultPipelineConfig(), s.classifier, s.cache, s.client, reputationPort, observers, metricsPort)

	s.buildListeners()

	return s, nil
}

func (s *Supervisor) buildListeners() {
	cfg := s.cfg

	if cfg.EnableHTTP {
		s.register(listeners.NewHTTP(cfg.HTTPPort, s.tracker))
	}
	if cfg.EnableHTTPS && cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		s.register(listeners.NewHTTPS(cfg.HTTPSPort, cfg.TLSCertFile, cfg.TLSKeyFile, s.tracker))
	} else if cfg.EnableHTTPS {
		log.Warn().Msg("ENABLE_HTTPS is set but TLS_CERT_FILE/TLS_KEY_FILE are missing; https listener not started")
	}
	if cfg.EnableSSH {
		ssh, err := listeners.NewSSH(cfg.SSHPort, cfg.SSHKeyPath, s.tracker)
		if err != nil {
			log.Error().Err(err).Msg("failed to build ssh listener")
			s.modules["ssh"] = &moduleEntry{status: domain.ModuleStatus{Name: "ssh", Port: cfg.SSHPort, Status: domain.ModuleStatusError, Error: err.Error()}}
		} else {
			s.register(ssh)
		}
	}
	if cfg.EnableFTP {
		ftp := listeners.NewFTP(cfg.FTPPort, s.tracker)
		ftp.SetBannerFunc(s.lureWatcher.BannerFunc("ftp/banner.txt", "220 FTP Server Ready"))
		s.register(ftp)
	}
	if cfg.EnableMail {
		smtp := listeners.NewSMTP(cfg.SMTPPort, s.tracker)
		smtp.SetBannerFunc(s.lureWatcher.BannerFunc("mail/smtp_banner.txt", "220 mail.local ESMTP ready"))
		s.register(smtp)

		submission := listeners.NewSMTP(cfg.SMTPSubmissionPort, s.tracker)
		submission.SetBannerFunc(s.lureWatcher.BannerFunc("mail/smtp_banner.txt", "220 mail.local ESMTP ready"))
		s.register(submission)

		s.register(listeners.NewPOP3(cfg.POP3Port, s.tracker))
		s.register(listeners.NewIMAP(cfg.IMAPPort, s.tracker))
	}
	if cfg.EnableMySQL {
		mysql := listeners.NewMySQL(cfg.MySQLPort, s.tracker)
		mysql.SetVersionFunc(s.lureWatcher.BannerFunc("mysql/version.txt", "8.0.34-sentryhive"))
		s.register(mysql)
	}
}

func (s *Supervisor) register(l ports.ProtocolListener) {
	name := l.Name()
	// Both SMTP listeners (MX + submission) share the name "smtp"; key
	// module status by name+port so /monitor reports each independently.
	key := fmt.Sprintf("%s:%d", name, l.Port())
	s.modules[key] = &moduleEntry{listener: l, status: domain.ModuleStatus{Name: name, Port: l.Port(), Status: domain.ModuleStatusOff}}
}

// diagnosticsHTTPListener returns the plain HTTP listener, the only one
// that carries the diagnostics HTTP surface, per §6.
func (s *Supervisor) diagnosticsHTTPListener() *listeners.HTTPListener {
	for _, entry := range s.modules {
		if l, ok := entry.listener.(*listeners.HTTPListener); ok && l.Name() == "http" {
			return l
		}
	}
	return nil
}

// Start binds every enabled listener, wires diagnostics, and launches
// the pipeline and background loops. A single listener's bind failure is
// logged and reflected in its module status but does not abort the
// others; the only fatal condition is every enabled listener failing.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if httpListener := s.diagnosticsHTTPListener(); httpListener != nil {
		diagServer := diagnostics.New(diagnostics.Config{
			HoneypotID:  s.cfg.HoneypotID,
			Version:     Version,
			APIEndpoint: s.cfg.APIEndpoint,
			OfflineMode: s.cfg.OfflineMode,
			DebugMode:   s.cfg.DebugMode,
		}, s.client, s.cache, s.ModuleStatuses)
		httpListener.RegisterDiagnostics(diagServer.Register)
	}

	if err := s.lureWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("lure content watcher failed to start")
	}

	s.pipeline.Start(s.ctx)

	started := 0
	for key, entry := range s.modules {
		if entry.listener == nil {
			continue // already recorded as a build-time failure (e.g. ssh host key)
		}
		emit := s.emitFunc(entry.status.Name)
		if err := entry.listener.Start(s.ctx, emit); err != nil {
			log.Error().Err(err).Str("module", key).Msg("listener failed to start")
			s.setStatus(key, domain.ModuleStatusError, err.Error())
			continue
		}
		s.setStatus(key, domain.ModuleStatusRunning, "")
		started++
	}

	if started == 0 && len(s.modules) > 0 {
		return fmt.Errorf("supervisor: no listener could be started")
	}

	if s.metrics != nil {
		if err := s.metrics.StartServer(output.DefaultMetricsConfig()); err != nil {
			log.Warn().Err(err).Msg("failed to start metrics server")
		}
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.client.RunHeartbeatScheduler(s.ctx, 2*time.Second)
	}()
	go func() {
		defer s.wg.Done()
		s.client.RunReplayLoop(s.ctx)
	}()

	if s.metrics != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reportGaugesLoop()
		}()
	}

	s.running = true
	log.Info().Int("modules_started", started).Msg("supervisor started")
	return nil
}

func (s *Supervisor) reportGaugesLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.metrics.SetSpoolDepth(s.client.SpoolDepth())
			s.metrics.SetHeartbeatFailures(s.client.Diagnostics().ConsecutiveFailures)
		}
	}
}

func (s *Supervisor) emitFunc(protocol string) ports.EmitFunc {
	return func(ev *domain.ObservationEvent) {
		if !s.pipeline.Submit(ev) {
			log.Warn().Str("protocol", protocol).Msg("observation event dropped: pipeline unavailable")
		}
	}
}

func (s *Supervisor) setStatus(key, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.modules[key]
	if !ok {
		return
	}
	entry.status.Status = status
	entry.status.Error = errMsg
}

// ModuleStatuses implements diagnostics.ModuleStatusFunc.
func (s *Supervisor) ModuleStatuses() []domain.ModuleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ModuleStatus, 0, len(s.modules))
	for _, entry := range s.modules {
		out = append(out, entry.status)
	}
	return out
}

// Stop gracefully shuts down every listener, the pipeline, and every
// background loop, in roughly reverse-start order.
func (s *Supervisor) Stop() {
	if !s.running {
		return
	}
	log.Info().Msg("stopping supervisor")

	if s.cancel != nil {
		s.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for key, entry := range s.modules {
		if entry.listener == nil {
			continue
		}
		if err := entry.listener.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("module", key).Msg("listener stop error")
		}
	}

	s.pipeline.Stop()
	s.wg.Wait()

	if s.metrics != nil {
		s.metrics.StopServer()
	}
	s.lureWatcher.Stop()
	s.tracker.Stop()
	s.cache.Close()
	if s.reputation != nil {
		s.reputation.Close()
	}
	if err := s.attackLog.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close attack log")
	}
	if err := s.client.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close api client")
	}

	s.running = false
	log.Info().Msg("supervisor stopped")
}

// RingBuffer exposes the in-memory recent-records feed, for the optional
// console.
func (s *Supervisor) RingBuffer() *output.RingBuffer { return s.ringBuffer }

// SpoolDepth reports how many records are waiting in the offline spool,
// for the optional console's status bar.
func (s *Supervisor) SpoolDepth() int { return s.client.SpoolDepth() }

// HeartbeatFailures reports the current consecutive heartbeat failure
// count, for the optional console's status bar.
func (s *Supervisor) HeartbeatFailures() int { return s.client.Diagnostics().ConsecutiveFailures }

// ThrottleStats exposes the throttle cache's tracked-address count, for
// the optional console's status bar.
func (s *Supervisor) ThrottleStats() throttle.Stats { return s.cache.Stats() }

// WaitForSignal blocks until SIGINT or SIGTERM, then stops the
// supervisor.
func (s *Supervisor) WaitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	s.Stop()
}

// Run starts the supervisor and blocks until a shutdown signal arrives.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.WaitForSignal()
	return nil
}

// Version is set by main via ldflags; used in the /monitor payload.
var Version = "dev"
