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

// POP3Listener emulates a POP3 mailbox: USER/PASS always fail after the
// tarpit delay; everything else is politely rejected.
type POP3Listener struct {
	shared *Shared
	port   int
	cl     *closerListener
}

// NewPOP3 builds a POP3 listener bound to port.
func NewPOP3(port int, tr *tracker.Tracker) *POP3Listener {
	return &POP3Listener{port: port, shared: &Shared{Tracker: tr, Protocol: domain.ProtoPOP3}}
}

func (l *POP3Listener) Name() string { return "pop3" }
func (l *POP3Listener) Port() int    { return l.port }

func (l *POP3Listener) Start(ctx context.Context, emit ports.EmitFunc) error {
	l.shared.Emit = emit
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("pop3: listen on %d: %w", l.port, err)
	}
	l.cl = newCloserListener(ln)
	log.Info().Int("port", l.port).Msg("pop3 listener started")
	go acceptLoop(ln, l.cl.stopCh, l.handleConn)
	return nil
}

func (l *POP3Listener) Stop(ctx context.Context) error {
	if l.cl == nil {
		return nil
	}
	return l.cl.stop()
}

func (l *POP3Listener) handleConn(conn net.Conn) {
	addr, port := sourceAddress(conn)
	sess := domain.NewSessionState(newConnectionID(), addr, port)

	l.shared.checkRapidConnection(addr)

	fmt.Fprint(conn, "+OK POP3 server ready\r\n")
	reader := bufio.NewReader(conn)

	var user string
	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			continue
		}
		sess.Touch(cmd)

		verb, arg := splitVerb(cmd)
		switch trimCommand(verb) {
		case "USER":
			user = arg
			fmt.Fprint(conn, "+OK\r\n")
		case "PASS":
			sess.AuthAttempts++
			tarpitThenFail()
			l.shared.checkBruteforce(addr, user, "pop3_bruteforce")
			fmt.Fprint(conn, "-ERR authentication failed\r\n")
		case "STAT", "LIST", "RETR", "UIDL":
			fmt.Fprint(conn, "-ERR not authenticated\r\n")
		case "QUIT":
			fmt.Fprint(conn, "+OK bye\r\n")
			l.shared.checkPortScan(sess, "port_scan")
			return
		default:
			fmt.Fprint(conn, "-ERR unknown command\r\n")
		}
	}

	l.shared.checkPortScan(sess, "port_scan")
}
