package listeners

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// IMAPListener emulates a tagged IMAP command loop: LOGIN always fails
// after the tarpit delay.
type IMAPListener struct {
	shared *Shared
	port   int
	cl     *closerListener
}

// NewIMAP builds an IMAP listener bound to port.
func NewIMAP(port int, tr *tracker.Tracker) *IMAPListener {
	return &IMAPListener{port: port, shared: &Shared{Tracker: tr, Protocol: domain.ProtoIMAP}}
}

func (l *IMAPListener) Name() string { return "imap" }
func (l *IMAPListener) Port() int    { return l.port }

func (l *IMAPListener) Start(ctx context.Context, emit ports.EmitFunc) error {
	l.shared.Emit = emit
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("imap: listen on %d: %w", l.port, err)
	}
	l.cl = newCloserListener(ln)
	log.Info().Int("port", l.port).Msg("imap listener started")
	go acceptLoop(ln, l.cl.stopCh, l.handleConn)
	return nil
}

func (l *IMAPListener) Stop(ctx context.Context) error {
	if l.cl == nil {
		return nil
	}
	return l.cl.stop()
}

func (l *IMAPListener) handleConn(conn net.Conn) {
	addr, port := sourceAddress(conn)
	sess := domain.NewSessionState(newConnectionID(), addr, port)

	l.shared.checkRapidConnection(addr)

	fmt.Fprint(conn, "* OK IMAP4rev1 Service Ready\r\n")
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		sess.Touch(raw)

		tag, rest := splitVerb(raw)
		sess.IMAPTag = tag
		verb, arg := splitVerb(rest)

		switch trimCommand(verb) {
		case "LOGIN":
			sess.AuthAttempts++
			user, _ := splitVerb(arg)
			tarpitThenFail()
			l.shared.checkBruteforce(addr, strings.Trim(user, `"`), "imap_bruteforce")
			fmt.Fprintf(conn, "%s NO LOGIN failed\r\n", tag)
		case "CAPABILITY":
			fmt.Fprint(conn, "* CAPABILITY IMAP4rev1\r\n")
			fmt.Fprintf(conn, "%s OK CAPABILITY completed\r\n", tag)
		case "LOGOUT":
			fmt.Fprint(conn, "* BYE logging out\r\n")
			fmt.Fprintf(conn, "%s OK LOGOUT completed\r\n", tag)
			l.shared.checkPortScan(sess, "port_scan")
			return
		default:
			fmt.Fprintf(conn, "%s BAD command unrecognized\r\n", tag)
		}
	}

	l.shared.checkPortScan(sess, "port_scan")
}
