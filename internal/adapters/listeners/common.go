// Package listeners implements the protocol listeners and session
// detectors (C1): one net.Listener per protocol, each speaking just
// enough of it to elicit attacker behavior, and a set of
// protocol-independent detection rules shared by every one of them.
package listeners

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// ScanDurationMS is the default threshold below which a short,
// unauthenticated session is suspected to be a scan rather than a real
// client, per §4.1's port-scan rule.
const ScanDurationMS = 500

// AuthTarpitDelay is applied before every authentication failure, making
// credential enumeration costly and giving the attacker time to submit
// more of a password than a single round-trip would otherwise invite.
const AuthTarpitDelay = time.Second

// Shared holds the dependencies every listener needs: where to send
// observation events, the cross-protocol bruteforce/rapid-connection
// tracker, and the listener's own protocol tag. Each protocol listener
// embeds a *Shared.
type Shared struct {
	Emit     ports.EmitFunc
	Tracker  *tracker.Tracker
	Protocol string
}

// newConnectionID mints a per-session identifier, used for nothing but
// log correlation and diagnostics: the backend never sees it.
func newConnectionID() string {
	return uuid.NewString()
}

func sourceAddress(conn net.Conn) (string, int) {
	host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String(), 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func emitEvent(emit ports.EmitFunc, protocol, addr, internalKind, description string, evidence ...string) {
	ev := domain.AcquireObservationEvent()
	ev.SourceAddress = addr
	ev.Protocol = protocol
	ev.InternalKind = internalKind
	ev.Description = description
	ev.Evidence = append(ev.Evidence[:0], evidence...)
	ev.SessionTime = time.Now()
	emit(ev)
}

// emit is the Shared-bound convenience wrapper listeners call directly.
func (s *Shared) emit(addr, internalKind, description string, evidence ...string) {
	emitEvent(s.Emit, s.Protocol, addr, internalKind, description, evidence...)
}

// tarpitThenFail sleeps AuthTarpitDelay then returns, modeling "all auth
// endpoints always fail, after a ~1s delay, regardless of credentials"
// (§4.1 common session behaviors).
func tarpitThenFail() {
	time.Sleep(AuthTarpitDelay)
}

// checkPortScan implements the generic (non-SSH) port-scan rule: a
// session shorter than ScanDurationMS with at most one meaningful
// command is reported at close.
func (s *Shared) checkPortScan(sess *domain.SessionState, kind string) {
	if sess.Duration() < ScanDurationMS*time.Millisecond && sess.MeaningfulCommandCount() <= 1 {
		s.emit(sess.SourceAddress, kind, "short unauthenticated session", fmt.Sprintf("duration_ms=%d", sess.Duration().Milliseconds()))
	}
}

// checkBruteforce records one authentication attempt against the shared
// tracker and, if the bruteforce rule fires, emits the event.
func (s *Shared) checkBruteforce(addr, username, kind string) {
	if s.Tracker == nil {
		return
	}
	if s.Tracker.RecordAuthAttempt(addr, username, time.Now()) {
		s.emit(addr, kind, "repeated authentication attempts",
			fmt.Sprintf("attempts=%d", s.Tracker.AuthAttemptCount(addr)))
	}
}

// checkRapidConnection records a bare accept against the shared tracker
// and, if the rapid-connection rule fires, emits the event under the
// listener's own protocol-specific bruteforce-scan kind (e.g.
// "ssh_bruteforce_scan"), mirroring checkBruteforce's kind parameter
// rather than a single shared literal every protocol would collide on.
func (s *Shared) checkRapidConnection(addr string) {
	if s.Tracker == nil {
		return
	}
	if s.Tracker.RecordConnection(addr, time.Now()) {
		s.emit(addr, s.Protocol+"_bruteforce_scan", "rapid repeated connections from source")
	}
}

// acceptLoop is the common listener shape: bind, accept in a loop,
// dispatch each connection to handle in its own goroutine, stop cleanly
// when stopCh closes.
func acceptLoop(ln net.Listener, stopCh <-chan struct{}, handle func(net.Conn)) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
				log.Warn().Err(err).Str("addr", ln.Addr().String()).Msg("accept failed")
				continue
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			handle(conn)
		}()
	}
}

// closerListener wraps a net.Listener together with the stop-channel the
// accept loop watches, so Stop() can both close the listener (unblocking
// Accept) and signal the loop not to log that as an error.
type closerListener struct {
	ln     net.Listener
	stopCh chan struct{}
	once   sync.Once
}

func newCloserListener(ln net.Listener) *closerListener {
	return &closerListener{ln: ln, stopCh: make(chan struct{})}
}

func (c *closerListener) stop() error {
	var err error
	c.once.Do(func() {
		close(c.stopCh)
		err = c.ln.Close()
	})
	return err
}

// trimCommand uppercases and trims a protocol command/verb for uniform
// dispatch matching.
func trimCommand(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
