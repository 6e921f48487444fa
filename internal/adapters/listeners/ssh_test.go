package listeners

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/oriongate/sentryhive/internal/adapters/classification"
	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
)

func TestSSHListenerAuthAlwaysFailsAndBruteforces(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	keyPath := filepath.Join(t.TempDir(), "host_key")
	l, err := NewSSH(0, keyPath, tr)
	require.NoError(t, err)

	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)

	for i := 0; i < 3; i++ {
		cfg := &ssh.ClientConfig{
			User:            "root",
			Auth:            []ssh.AuthMethod{ssh.Password("wrong")},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         2 * time.Second,
		}
		conn, err := ssh.Dial("tcp", addr, cfg)
		assert.Error(t, err)
		if conn != nil {
			conn.Close()
		}
	}

	select {
	case ev := <-events:
		assert.Equal(t, "ssh_bruteforce", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a bruteforce observation event")
	}
}

func TestSSHListenerPortScanWithoutAuthAttempt(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	keyPath := filepath.Join(t.TempDir(), "host_key")
	l, err := NewSSH(0, keyPath, tr)
	require.NoError(t, err)

	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case ev := <-events:
		assert.Equal(t, "port_scan", ev.InternalKind)
	case <-time.After(7 * time.Second):
		t.Fatal("expected a port_scan observation event")
	}
}

// TestSSHListenerRapidConnectionClassifiesAsSSHBruteforce replicates S2:
// three rapid connects from the same source, none of which attempt auth,
// must fire the protocol-specific rapid-connection label and that label
// must classify as an ssh_bruteforce admission, not the
// credential_stuffing/auth_breach kinds the other protocols'
// rapid-connection labels map to. It uses a tracker with the default
// rapid-connection threshold of three, since newTestTracker sets that
// threshold out of reach.
func TestSSHListenerRapidConnectionClassifiesAsSSHBruteforce(t *testing.T) {
	cfg := tracker.DefaultConfig()
	cfg.CleanupInterval = time.Hour
	tr := tracker.New(cfg)
	defer tr.Stop()

	keyPath := filepath.Join(t.TempDir(), "host_key")
	l, err := NewSSH(0, keyPath, tr)
	require.NoError(t, err)

	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		conn.Close()
	}

	select {
	case ev := <-events:
		require.Equal(t, "ssh_bruteforce_scan", ev.InternalKind)
		rec := classification.Classify(ev.InternalKind, ev.Evidence, 0, ev.Description)
		assert.Equal(t, domain.KindSSHBruteforce, rec.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected an ssh_bruteforce_scan observation event")
	}
}
