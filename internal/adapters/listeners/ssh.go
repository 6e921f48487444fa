package listeners

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// sshPortScanDelay is the window within which a session must attempt at
// least one authentication, or it is reported as a port scan, per §4.1's
// SSH-specific port-scan timer.
const sshPortScanDelay = 5 * time.Second

// SSHListener emulates an SSH server whose every authentication attempt
// (password or public key) fails after the tarpit delay. Unlike the
// general session that merely collects credentials before granting
// access, this listener never returns a successful ssh.Permissions: the
// detection pipeline's brute-force signal depends on attackers retrying,
// which only happens if they are never let in.
type SSHListener struct {
	shared  *Shared
	port    int
	hostKey ssh.Signer
	cl      *closerListener
}

// NewSSH builds an SSH listener bound to port, loading or generating its
// persistent host key at keyPath.
func NewSSH(port int, keyPath string, tr *tracker.Tracker) (*SSHListener, error) {
	key, err := loadOrGenerateHostKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh: host key: %w", err)
	}
	return &SSHListener{
		port:    port,
		hostKey: key,
		shared:  &Shared{Tracker: tr, Protocol: domain.ProtoSSH},
	}, nil
}

func loadOrGenerateHostKey(path string) (ssh.Signer, error) {
	if data, err := os.ReadFile(path); err == nil {
		if block, _ := pem.Decode(data); block != nil {
			if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
				return ssh.NewSignerFromKey(key)
			}
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		if f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600); err == nil {
			pem.Encode(f, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
			f.Close()
		}
	}
	return ssh.NewSignerFromKey(key)
}

func (l *SSHListener) Name() string { return "ssh" }
func (l *SSHListener) Port() int    { return l.port }

func (l *SSHListener) Start(ctx context.Context, emit ports.EmitFunc) error {
	l.shared.Emit = emit
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("ssh: listen on %d: %w", l.port, err)
	}
	l.cl = newCloserListener(ln)
	log.Info().Int("port", l.port).Msg("ssh listener started")
	go acceptLoop(ln, l.cl.stopCh, l.handleConn)
	return nil
}

func (l *SSHListener) Stop(ctx context.Context) error {
	if l.cl == nil {
		return nil
	}
	return l.cl.stop()
}

func (l *SSHListener) serverConfig(addr string, authSeen *sync.Once, cancelScan func()) *ssh.ServerConfig {
	fail := func(username string) (*ssh.Permissions, error) {
		authSeen.Do(cancelScan)
		tarpitThenFail()
		l.shared.checkBruteforce(addr, username, "ssh_bruteforce")
		return nil, fmt.Errorf("authentication failed")
	}

	cfg := &ssh.ServerConfig{
		ServerVersion: "SSH-2.0-OpenSSH_8.9",
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return fail(conn.User())
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return fail(conn.User())
		},
	}
	cfg.AddHostKey(l.hostKey)
	return cfg
}

func (l *SSHListener) handleConn(conn net.Conn) {
	addr, port := sourceAddress(conn)
	sess := domain.NewSessionState(newConnectionID(), addr, port)

	l.shared.checkRapidConnection(addr)

	var authSeen sync.Once
	scanTimer := time.AfterFunc(sshPortScanDelay, func() {
		l.shared.emit(addr, "port_scan", "no authentication attempt within scan window")
	})
	cancelScan := func() { scanTimer.Stop() }
	defer scanTimer.Stop()

	cfg := l.serverConfig(addr, &authSeen, cancelScan)

	// PasswordCallback/PublicKeyCallback always return an error, so the
	// handshake itself never completes: this is the expected path for
	// every real connection attempt, authenticated or not.
	ssh.NewServerConn(conn, cfg)
	sess.Touch("handshake")
}
