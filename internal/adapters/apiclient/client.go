// Package apiclient implements the API client (C4): heartbeat scheduling,
// report delivery, and an on-disk spool for offline replay.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// Config configures the API client's endpoint, credentials, and retry
// policy, per §6's environment-variable table.
type Config struct {
	HoneypotID  string
	APIKey      string
	Endpoint    string // base URL, e.g. http://localhost:3000/api
	OfflineMode bool
	DebugMode   bool

	HeartbeatInterval   time.Duration // default 60s
	HeartbeatRetryCount int           // default 3
	HeartbeatRetryDelay time.Duration // default 5s

	ReportTimeout    time.Duration // default 5s, hard timeout on report send
	HeartbeatTimeout time.Duration // default 10s, hard timeout on heartbeat send
	PingTimeout      time.Duration // default 5s, hard timeout on the ping probe

	SpoolPath         string
	SpoolClearOnStart bool
	ReplayInterval    time.Duration // default 5m
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		HoneypotID:          "test",
		Endpoint:            "http://localhost:3000/api",
		HeartbeatInterval:   60 * time.Second,
		HeartbeatRetryCount: 3,
		HeartbeatRetryDelay: 5 * time.Second,
		ReportTimeout:       5 * time.Second,
		HeartbeatTimeout:    10 * time.Second,
		PingTimeout:         5 * time.Second,
		SpoolPath:           "logs/offline_attacks.json",
		SpoolClearOnStart:   true,
		ReplayInterval:      5 * time.Minute,
	}
}

type reportPayload struct {
	IPAddress   string   `json:"ip_address"`
	AttackType  string   `json:"attack_type"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
	Severity    int      `json:"severity"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
}

type heartbeatPayload struct {
	HoneypotID string `json:"honeypot_id"`
}

// Client implements ports.ReportSink against the backend described in
// §6, with automatic offline spooling on any delivery failure.
type Client struct {
	cfg   Config
	http  *http.Client
	spool *Spool

	mu          sync.Mutex
	diagnostics domain.HeartbeatDiagnosticRecord

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a client and opens its offline spool.
func New(cfg Config) (*Client, error) {
	spool, err := NewSpool(cfg.SpoolPath, cfg.SpoolClearOnStart)
	if err != nil {
		return nil, fmt.Errorf("apiclient: open spool: %w", err)
	}
	return &Client{
		cfg: cfg,
		// No client-level Timeout: report, heartbeat, and ping each carry
		// their own hard deadline via context.WithTimeout at the call site,
		// since the spec gives them distinct values (5s/10s/5s) and a
		// single shared http.Client.Timeout can only enforce one.
		http:   &http.Client{},
		spool:  spool,
		stopCh: make(chan struct{}),
	}, nil
}

var _ ports.ReportSink = (*Client)(nil)

func (c *Client) endpointURL(path string) string {
	u := fmt.Sprintf("%s%s", c.cfg.Endpoint, path)
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	return u + "?" + q.Encode()
}

// SendReport implements ports.ReportSink. In offline mode every admitted
// record is spooled directly without an attempted transmission.
func (c *Client) SendReport(ctx context.Context, rec domain.CanonicalAttackRecord) error {
	if c.cfg.OfflineMode {
		return c.spoolRecord(rec, false)
	}

	if err := c.postReport(ctx, rec); err != nil {
		log.Warn().Err(err).Str("ip", rec.SourceAddress).Str("kind", string(rec.Kind)).
			Msg("report delivery failed, spooling")
		if spoolErr := c.spoolRecord(rec, false); spoolErr != nil {
			log.Error().Err(spoolErr).Msg("failed to spool undelivered report")
		}
		return err
	}
	return nil
}

// postReport marshals and transmits one canonical record to
// /honeypot/report-ip, with no spool side effect: callers decide what to
// do on failure (SendReport spools, ReplayNow/RunReplayLoop keep the
// entry pending).
func (c *Client) postReport(ctx context.Context, rec domain.CanonicalAttackRecord) error {
	payload := reportPayload{
		IPAddress:   rec.SourceAddress,
		AttackType:  string(rec.Kind),
		Description: rec.Description,
		Evidence:    normalizeEvidence(rec.Evidence),
		Severity:    rec.Severity,
		Category:    string(rec.Category),
		Source:      "honeypot",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("apiclient: marshal report: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.reportTimeout())
	defer cancel()
	return c.post(ctx, c.endpointURL("/honeypot/report-ip"), body)
}

func (c *Client) reportTimeout() time.Duration {
	if c.cfg.ReportTimeout <= 0 {
		return 5 * time.Second
	}
	return c.cfg.ReportTimeout
}

func (c *Client) heartbeatTimeout() time.Duration {
	if c.cfg.HeartbeatTimeout <= 0 {
		return 10 * time.Second
	}
	return c.cfg.HeartbeatTimeout
}

func (c *Client) pingTimeout() time.Duration {
	if c.cfg.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.cfg.PingTimeout
}

// SpoolSuppressed persists a throttled-but-stored record without ever
// attempting delivery, used when STORE_THROTTLED_ATTACKS is enabled.
func (c *Client) SpoolSuppressed(rec domain.CanonicalAttackRecord) error {
	return c.spoolRecord(rec, true)
}

func (c *Client) spoolRecord(rec domain.CanonicalAttackRecord, throttled bool) error {
	return c.spool.Append(domain.SpoolEntry{
		Record:        rec,
		StoredAt:      time.Now(),
		PendingUpload: true,
		Throttled:     throttled,
	})
}

// normalizeEvidence implements the spec's coercion rule: evidence is
// always transmitted as an ordered sequence of strings.
func normalizeEvidence(evidence []string) []string {
	if evidence == nil {
		return []string{}
	}
	return evidence
}

// SendHeartbeat implements ports.ReportSink: one heartbeat attempt,
// updating the diagnostic record. Retry scheduling is driven by
// RunHeartbeatScheduler, not by this method itself.
func (c *Client) SendHeartbeat(ctx context.Context) error {
	body, _ := json.Marshal(heartbeatPayload{HoneypotID: c.cfg.HoneypotID})
	reqURL := c.endpointURL("/honeypot/heartbeat")
	ctx, cancel := context.WithTimeout(ctx, c.heartbeatTimeout())
	defer cancel()
	return c.post(ctx, reqURL, body)
}

// post issues one request, records it (with credentials redacted) into
// the diagnostic record, and classifies 2xx vs everything else.
func (c *Client) post(ctx context.Context, reqURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.recordRequest(reqURL, body)

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure(0, err.Error())
		return fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.recordSuccess(resp.StatusCode, string(respBody))
		return nil
	}

	msg := fmt.Sprintf("backend returned status %d", resp.StatusCode)
	if resp.StatusCode == http.StatusForbidden {
		log.Warn().Str("url", reqURL).Msg("backend reports a permissions error (403)")
	}
	c.recordFailure(resp.StatusCode, string(respBody))
	return fmt.Errorf("apiclient: %s", msg)
}

func redactURL(reqURL string) string {
	u, err := url.Parse(reqURL)
	if err != nil {
		return reqURL
	}
	q := u.Query()
	if q.Get("api_key") != "" {
		q.Set("api_key", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) recordRequest(reqURL string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics.LastRequest = domain.LastRequest{
		URL:        redactURL(reqURL),
		Method:     http.MethodPost,
		Body:       string(body),
		RedactedAt: time.Now(),
	}
}

func (c *Client) recordSuccess(status int, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics.LastResponse = domain.LastResponse{Status: status, Body: body}
	c.diagnostics.LastSuccess = time.Now()
	c.diagnostics.ConsecutiveFailures = 0
	c.diagnostics.LastErr = domain.LastError{}
}

func (c *Client) recordFailure(status int, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics.ConsecutiveFailures++
	c.diagnostics.LastErr = domain.LastError{
		Message: "delivery failed",
		Status:  status,
		Body:    body,
	}
}

// Diagnostics implements ports.ReportSink.
func (c *Client) Diagnostics() domain.HeartbeatDiagnosticRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagnostics
}

// Ping implements ports.ReportSink: GET /ping?api_key=K, used both by the
// three-consecutive-failure probe and the /test-heartbeat diagnostic route.
func (c *Client) Ping(ctx context.Context) ports.PingResult {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout())
	defer cancel()

	reqURL := c.endpointURL("/ping")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ports.PingResult{Success: false, Message: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.PingResult{Success: false, Message: err.Error()}
	}
	defer resp.Body.Close()

	return ports.PingResult{
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("ping returned %d", resp.StatusCode),
	}
}

// RunHeartbeatScheduler drives the periodic heartbeat: once at startup
// after startupDelay, then every HeartbeatInterval. Each cycle retries
// immediately (debug mode only) up to HeartbeatRetryCount times,
// separated by HeartbeatRetryDelay, and fires one ping probe the moment
// consecutive failures reaches exactly three. Blocks until ctx is
// cancelled or Close is called.
func (c *Client) RunHeartbeatScheduler(ctx context.Context, startupDelay time.Duration) {
	if c.cfg.OfflineMode {
		log.Info().Msg("offline mode: heartbeat scheduler not started")
		return
	}

	select {
	case <-time.After(startupDelay):
	case <-ctx.Done():
		return
	case <-c.stopCh:
		return
	}

	c.heartbeatCycle(ctx)

	interval := c.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.heartbeatCycle(ctx)
		}
	}
}

func (c *Client) heartbeatCycle(ctx context.Context) {
	probe := func() {
		if c.Diagnostics().ConsecutiveFailures == 3 {
			result := c.Ping(ctx)
			log.Warn().Bool("success", result.Success).Int("status", result.Status).
				Msg("ran ping probe after three consecutive heartbeat failures")
		}
	}

	err := c.SendHeartbeat(ctx)
	if err == nil {
		return
	}
	probe()

	if c.cfg.DebugMode {
		retries := c.cfg.HeartbeatRetryCount
		for attempt := 1; attempt <= retries && c.Diagnostics().ConsecutiveFailures <= retries; attempt++ {
			select {
			case <-time.After(c.cfg.HeartbeatRetryDelay):
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
			if sendErr := c.SendHeartbeat(ctx); sendErr == nil {
				return
			}
			probe()
		}
	}
}

// RunReplayLoop periodically replays spooled entries while any are
// pending, per the spec's "every 5 minutes when consecutive_report_failures
// > 0" rule, relaxed here to "whenever the spool is non-empty" so a
// freshly offline-populated spool also drains once connectivity returns.
// Delivery reuses postReport directly rather than SendReport, so a
// failed replay attempt leaves the entry in the spool instead of
// spooling a second, duplicate copy of it.
func (c *Client) RunReplayLoop(ctx context.Context) {
	send := func(rec domain.CanonicalAttackRecord) error {
		return c.postReport(ctx, rec)
	}

	interval := c.cfg.ReplayInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.spool.Len() == 0 {
				continue
			}
			uploaded, remaining, err := c.spool.ReplayWith(send)
			if err != nil {
				log.Error().Err(err).Msg("spool replay pass failed")
				continue
			}
			log.Info().Int("uploaded", uploaded).Int("remaining", remaining).Msg("spool replay pass complete")
		}
	}
}

// SpoolDepth returns the current number of spooled entries, for the
// sentryhive_spool_depth gauge.
func (c *Client) SpoolDepth() int { return c.spool.Len() }

// PendingSpoolEntries returns every spooled entry still awaiting upload,
// for the /offline-attacks diagnostics route.
func (c *Client) PendingSpoolEntries() ([]domain.SpoolEntry, error) {
	return c.spool.Pending()
}

// ReplayNow triggers one immediate out-of-band replay pass, for the
// /upload-offline-attacks diagnostics route.
func (c *Client) ReplayNow(ctx context.Context) (uploaded, remaining int, err error) {
	return c.spool.ReplayWith(func(rec domain.CanonicalAttackRecord) error {
		return c.postReport(ctx, rec)
	})
}

// Close stops the heartbeat and replay loops.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}
