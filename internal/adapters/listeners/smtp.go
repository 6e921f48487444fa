package listeners

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/adapters/contentrules"
	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// SMTPListener emulates an SMTP server (either the MX port 25 or the
// submission port 587; both run this same state machine). Close-time
// content rules decide harvesting/relay/spam, per §4.1.
type SMTPListener struct {
	shared   *Shared
	port     int
	cl       *closerListener
	bannerFn func() string
}

const defaultSMTPBanner = "220 mail.local ESMTP ready"

// NewSMTP builds an SMTP listener bound to port.
func NewSMTP(port int, tr *tracker.Tracker) *SMTPListener {
	return &SMTPListener{port: port, shared: &Shared{Tracker: tr, Protocol: domain.ProtoSMTP}}
}

// SetBannerFunc overrides the ESMTP greeting sent on connect, called once
// per session so an operator-edited lure file is picked up immediately.
func (l *SMTPListener) SetBannerFunc(fn func() string) {
	l.bannerFn = fn
}

func (l *SMTPListener) banner() string {
	if l.bannerFn != nil {
		return l.bannerFn()
	}
	return defaultSMTPBanner
}

func (l *SMTPListener) Name() string { return "smtp" }
func (l *SMTPListener) Port() int    { return l.port }

func (l *SMTPListener) Start(ctx context.Context, emit ports.EmitFunc) error {
	l.shared.Emit = emit
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("smtp: listen on %d: %w", l.port, err)
	}
	l.cl = newCloserListener(ln)
	log.Info().Int("port", l.port).Msg("smtp listener started")
	go acceptLoop(ln, l.cl.stopCh, l.handleConn)
	return nil
}

func (l *SMTPListener) Stop(ctx context.Context) error {
	if l.cl == nil {
		return nil
	}
	return l.cl.stop()
}

func (l *SMTPListener) handleConn(conn net.Conn) {
	addr, port := sourceAddress(conn)
	sess := domain.NewSessionState(newConnectionID(), addr, port)

	l.shared.checkRapidConnection(addr)

	facts := contentrules.SMTPSessionFacts{RcptDomains: make(map[string]struct{})}
	var dataBuilder strings.Builder
	var dataEvaluated bool

	fmt.Fprintf(conn, "%s\r\n", l.banner())
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			continue
		}

		if sess.DataMode {
			if cmd == "." {
				sess.DataMode = false
				fmt.Fprint(conn, "250 OK: message queued\r\n")
				l.evaluateFacts(addr, facts, dataBuilder.String())
				dataEvaluated = true
				continue
			}
			dataBuilder.WriteString(cmd)
			dataBuilder.WriteByte('\n')
			continue
		}

		sess.Touch(cmd)
		verb, arg := splitVerb(cmd)
		switch trimCommand(verb) {
		case "HELO", "EHLO":
			fmt.Fprint(conn, "250 mail.local\r\n")
		case "MAIL":
			sess.MailFrom = arg
			fmt.Fprint(conn, "250 OK\r\n")
		case "RCPT":
			facts.RcptCount++
			to := contentrules.NormalizeRcptTarget(strings.TrimPrefix(arg, "TO:"))
			sess.RcptTo = append(sess.RcptTo, to)
			if d := contentrules.ExtractDomain(to); d != "" {
				facts.RcptDomains[d] = struct{}{}
			}
			fmt.Fprint(conn, "250 OK\r\n")
		case "VRFY", "EXPN":
			facts.VrfyExpnCount++
			fmt.Fprint(conn, "252 Cannot VRFY user\r\n")
		case "DATA":
			sess.DataMode = true
			fmt.Fprint(conn, "354 Start mail input; end with <CRLF>.<CRLF>\r\n")
		case "AUTH":
			sess.AuthAttempts++
			tarpitThenFail()
			l.shared.checkBruteforce(addr, "", "smtp_bruteforce")
			fmt.Fprint(conn, "535 Authentication failed\r\n")
		case "QUIT":
			fmt.Fprint(conn, "221 Bye\r\n")
			if !dataEvaluated {
				l.evaluateFacts(addr, facts, dataBuilder.String())
			}
			l.shared.checkPortScan(sess, "port_scan")
			return
		default:
			fmt.Fprint(conn, "502 Command not implemented\r\n")
		}
	}

	if !dataEvaluated {
		l.evaluateFacts(addr, facts, dataBuilder.String())
	}
	l.shared.checkPortScan(sess, "port_scan")
}

// evaluateFacts runs the close-time content rule over whatever facts
// accumulated in the session, regardless of whether DATA was ever
// entered: a RCPT-heavy session that goes straight to QUIT (relay
// probing, recipient enumeration) is just as reportable as one that
// sends a message body.
func (l *SMTPListener) evaluateFacts(addr string, facts contentrules.SMTPSessionFacts, dataBody string) {
	if kind, desc, ok := contentrules.EvaluateSMTPSession(contentrules.SMTPSessionFacts{
		RcptCount:     facts.RcptCount,
		VrfyExpnCount: facts.VrfyExpnCount,
		RcptDomains:   facts.RcptDomains,
		DataBody:      dataBody,
	}); ok {
		l.shared.emit(addr, kind, desc, "rcpt_count="+strconv.Itoa(facts.RcptCount))
	}
}
