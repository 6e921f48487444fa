package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/sentryhive/internal/domain"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.HoneypotID = "test-hive"
	cfg.APIKey = "secret-key"
	cfg.SpoolPath = filepath.Join(t.TempDir(), "offline_attacks.json")
	cfg.SpoolClearOnStart = true
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSendReportSuccessDoesNotSpool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.SendReport(context.Background(), domain.CanonicalAttackRecord{
		SourceAddress: "1.2.3.4",
		Kind:          domain.KindPortScan,
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, c.SpoolDepth())
}

func TestSendReportFailureSpools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.SendReport(context.Background(), domain.CanonicalAttackRecord{
		SourceAddress: "1.2.3.5",
		Kind:          domain.KindSSHBruteforce,
	})
	assert.Error(t, err)
	assert.Equal(t, 1, c.SpoolDepth())
}

func TestOfflineModeAlwaysSpools(t *testing.T) {
	var hit atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = srv.URL
	cfg.OfflineMode = true
	cfg.SpoolPath = filepath.Join(t.TempDir(), "offline_attacks.json")
	cfg.SpoolClearOnStart = true
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	err = c.SendReport(context.Background(), domain.CanonicalAttackRecord{SourceAddress: "1.2.3.6", Kind: domain.KindDDoS})
	assert.NoError(t, err)
	assert.Equal(t, 1, c.SpoolDepth())
	assert.Zero(t, hit.Load())
}

func TestSendHeartbeatUpdatesDiagnostics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.SendHeartbeat(context.Background()))

	diag := c.Diagnostics()
	assert.Equal(t, 0, diag.ConsecutiveFailures)
	assert.False(t, diag.LastSuccess.IsZero())
}

func TestSendHeartbeatFailureIncrementsConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.SendHeartbeat(context.Background())
	c.SendHeartbeat(context.Background())

	assert.Equal(t, 2, c.Diagnostics().ConsecutiveFailures)
}

func TestAPIKeyRedactedFromDiagnostics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.SendHeartbeat(context.Background())

	assert.Contains(t, c.Diagnostics().LastRequest.URL, "api_key=REDACTED")
	assert.NotContains(t, c.Diagnostics().LastRequest.URL, "secret-key")
}

func TestReplayLoopDrainsSpoolOnceBackendRecovers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpoolPath = filepath.Join(t.TempDir(), "offline_attacks.json")
	cfg.SpoolClearOnStart = true
	cfg.OfflineMode = true
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	c.SendReport(context.Background(), domain.CanonicalAttackRecord{SourceAddress: "1.2.3.7", Kind: domain.KindPortScan})
	require.Equal(t, 1, c.SpoolDepth())

	uploaded, remaining, err := c.spool.ReplayWith(func(domain.CanonicalAttackRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, uploaded)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, 0, c.SpoolDepth())
}

// TestReportAndHeartbeatTimeoutsAreIndependent pins a server delay that a
// short report timeout can't survive but a longer heartbeat timeout can,
// proving the two use distinct deadlines rather than one shared
// http.Client.Timeout that would time out both or neither identically.
func TestReportAndHeartbeatTimeoutsAreIndependent(t *testing.T) {
	const delay = 80 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = srv.URL
	cfg.HoneypotID = "test-hive"
	cfg.SpoolPath = filepath.Join(t.TempDir(), "offline_attacks.json")
	cfg.SpoolClearOnStart = true
	cfg.ReportTimeout = 20 * time.Millisecond
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	err = c.SendReport(context.Background(), domain.CanonicalAttackRecord{SourceAddress: "1.2.3.9", Kind: domain.KindPortScan})
	assert.Error(t, err, "report timeout is shorter than the server delay, so it should fail")
	assert.Equal(t, 1, c.SpoolDepth())

	require.NoError(t, c.SendHeartbeat(context.Background()), "heartbeat timeout is longer than the server delay, so it should succeed")
}

func TestRunHeartbeatSchedulerStopsOnClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	done := make(chan struct{})
	go func() {
		c.RunHeartbeatScheduler(context.Background(), 0)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after Close")
	}
}
