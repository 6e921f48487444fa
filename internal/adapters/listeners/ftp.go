package listeners

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// maxFTPUpload caps how much of a STOR body the session will read, to
// bound the resource an attacker can force the honeypot to buffer.
const maxFTPUpload = 1024

// FTPListener emulates a minimal FTP control channel: banner, USER/PASS
// always failing after the tarpit delay, and a small set of harmless
// commands that keep an attacker's session going long enough to be
// classified rather than to actually serve files.
type FTPListener struct {
	shared   *Shared
	port     int
	cl       *closerListener
	bannerFn func() string
}

const defaultFTPBanner = "220 FTP Server Ready"

// NewFTP builds an FTP listener bound to port.
func NewFTP(port int, tr *tracker.Tracker) *FTPListener {
	return &FTPListener{port: port, shared: &Shared{Tracker: tr, Protocol: domain.ProtoFTP}}
}

// SetBannerFunc overrides the greeting line sent on connect, called once
// per session so an operator-edited lure file is picked up immediately.
func (l *FTPListener) SetBannerFunc(fn func() string) {
	l.bannerFn = fn
}

func (l *FTPListener) banner() string {
	if l.bannerFn != nil {
		return l.bannerFn()
	}
	return defaultFTPBanner
}

func (l *FTPListener) Name() string { return "ftp" }
func (l *FTPListener) Port() int    { return l.port }

// Start implements ports.ProtocolListener.
func (l *FTPListener) Start(ctx context.Context, emit ports.EmitFunc) error {
	l.shared.Emit = emit
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("ftp: listen on %d: %w", l.port, err)
	}
	l.cl = newCloserListener(ln)
	log.Info().Int("port", l.port).Msg("ftp listener started")
	go acceptLoop(ln, l.cl.stopCh, l.handleConn)
	return nil
}

// Stop implements ports.ProtocolListener.
func (l *FTPListener) Stop(ctx context.Context) error {
	if l.cl == nil {
		return nil
	}
	return l.cl.stop()
}

func (l *FTPListener) handleConn(conn net.Conn) {
	addr, port := sourceAddress(conn)
	sess := domain.NewSessionState(newConnectionID(), addr, port)

	l.shared.checkRapidConnection(addr)

	fmt.Fprintf(conn, "%s\r\n", l.banner())
	reader := bufio.NewReader(conn)

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
			sess.CommandHistory = append(sess.CommandHistory, "USER:"+arg)
			fmt.Fprint(conn, "331 Password required for "+arg+"\r\n")
		case "PASS":
			sess.AuthAttempts++
			tarpitThenFail()
			l.shared.checkBruteforce(addr, "", "ftp_bruteforce")
			fmt.Fprint(conn, "530 Login incorrect.\r\n")
		case "SYST":
			fmt.Fprint(conn, "215 UNIX Type: L8\r\n")
		case "PWD":
			fmt.Fprint(conn, "257 \"/\" is the current directory\r\n")
		case "TYPE":
			fmt.Fprint(conn, "200 Type set.\r\n")
		case "STOR":
			io.CopyN(io.Discard, reader, maxFTPUpload)
			fmt.Fprint(conn, "550 Permission denied.\r\n")
		case "LIST", "NLST":
			l.shared.emit(addr, "directory_listing", "directory listing attempted")
			fmt.Fprint(conn, "425 Can't open data connection.\r\n")
		case "QUIT":
			fmt.Fprint(conn, "221 Goodbye.\r\n")
			l.shared.checkPortScan(sess, "port_scan")
			return
		default:
			fmt.Fprint(conn, "502 Command not implemented.\r\n")
		}
	}

	l.shared.checkPortScan(sess, "port_scan")
}

func splitVerb(cmd string) (verb, arg string) {
	parts := strings.SplitN(cmd, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}
