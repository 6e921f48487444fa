package listeners

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/adapters/contentrules"
	"github.com/oriongate/sentryhive/internal/adapters/tracker"
	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// MySQLListener speaks just enough of the MySQL wire protocol to complete
// a handshake and always answer authentication with error 1045
// (SQLSTATE 28000). It never sets authenticated=true; any COM_QUERY
// reached afterward is a client that ignored the auth failure, and its
// query is checked against the SQLi token set on a best-effort basis
// only, per §4.1's explicit "never flip authenticated=true" rule.
type MySQLListener struct {
	shared    *Shared
	port      int
	cl        *closerListener
	versionFn func() string
}

const defaultMySQLVersion = "8.0.34-sentryhive"

// NewMySQL builds a MySQL listener bound to port.
func NewMySQL(port int, tr *tracker.Tracker) *MySQLListener {
	return &MySQLListener{port: port, shared: &Shared{Tracker: tr, Protocol: domain.ProtoMySQL}}
}

// SetVersionFunc overrides the server-version string sent in the
// handshake packet, called once per session so an operator-edited lure
// file is picked up immediately.
func (l *MySQLListener) SetVersionFunc(fn func() string) {
	l.versionFn = fn
}

func (l *MySQLListener) version() string {
	if l.versionFn != nil {
		return l.versionFn()
	}
	return defaultMySQLVersion
}

func (l *MySQLListener) Name() string { return "mysql" }
func (l *MySQLListener) Port() int    { return l.port }

func (l *MySQLListener) Start(ctx context.Context, emit ports.EmitFunc) error {
	l.shared.Emit = emit
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("mysql: listen on %d: %w", l.port, err)
	}
	l.cl = newCloserListener(ln)
	log.Info().Int("port", l.port).Msg("mysql listener started")
	go acceptLoop(ln, l.cl.stopCh, l.handleConn)
	return nil
}

func (l *MySQLListener) Stop(ctx context.Context) error {
	if l.cl == nil {
		return nil
	}
	return l.cl.stop()
}

func writePacket(conn net.Conn, seq byte, payload []byte) error {
	header := make([]byte, 4)
	length := len(payload)
	header[0] = byte(length)
	header[1] = byte(length >> 8)
	header[2] = byte(length >> 16)
	header[3] = seq
	_, err := conn.Write(append(header, payload...))
	return err
}

func readPacket(conn net.Conn) (seq byte, payload []byte, err error) {
	header := make([]byte, 4)
	if _, err = readFull(conn, header); err != nil {
		return 0, nil, err
	}
	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	seq = header[3]
	payload = make([]byte, length)
	if length > 0 {
		if _, err = readFull(conn, payload); err != nil {
			return 0, nil, err
		}
	}
	return seq, payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func makeHandshakePacket(connID uint32, salt []byte, version string) []byte {
	var b []byte
	b = append(b, 10) // protocol version
	b = append(b, []byte(version)...)
	b = append(b, 0)
	connIDBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(connIDBytes, connID)
	b = append(b, connIDBytes...)
	b = append(b, salt[:8]...)
	b = append(b, 0) // filler
	b = append(b, 0xff, 0xf7)  // capability flags lower
	b = append(b, 0x21)        // character set: utf8_general_ci
	b = append(b, 0x02, 0x00)  // status flags
	b = append(b, 0x0f, 0x81)  // capability flags upper
	b = append(b, 21)          // auth plugin data length
	b = append(b, make([]byte, 10)...) // reserved
	b = append(b, salt[8:20]...)
	b = append(b, 0)
	b = append(b, []byte("mysql_native_password")...)
	b = append(b, 0)
	return b
}

func makeAuthErrorPacket() []byte {
	var b []byte
	b = append(b, 0xff)
	b = append(b, 0x15, 0x04) // error code 1045 little endian
	b = append(b, '#')
	b = append(b, []byte("28000")...)
	b = append(b, []byte("Access denied for user")...)
	return b
}

func parseHandshakeResponseUsername(payload []byte) string {
	if len(payload) < 32 {
		return ""
	}
	rest := payload[32:]
	nul := indexByte(rest, 0)
	if nul < 0 {
		return string(rest)
	}
	return string(rest[:nul])
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func (l *MySQLListener) handleConn(conn net.Conn) {
	addr, port := sourceAddress(conn)
	sess := domain.NewSessionState(newConnectionID(), addr, port)

	l.shared.checkRapidConnection(addr)

	salt := make([]byte, 20)
	rand.Read(salt)
	sess.MySQLSalt = salt

	conn.SetDeadline(time.Now().Add(30 * time.Second))
	if err := writePacket(conn, 0, makeHandshakePacket(sess.MySQLConnID, salt, l.version())); err != nil {
		return
	}

	_, payload, err := readPacket(conn)
	if err != nil {
		l.shared.checkPortScan(sess, "port_scan")
		return
	}
	username := parseHandshakeResponseUsername(payload)
	sess.AuthAttempts++
	sess.Touch("HANDSHAKE:" + username)

	tarpitThenFail()
	l.shared.checkBruteforce(addr, username, "mysql_auth_attempt")

	if err := writePacket(conn, 2, makeAuthErrorPacket()); err != nil {
		return
	}

	// authenticated is never set true; anything read past this point is a
	// client ignoring the failure. Best-effort SQLi check only.
	for {
		conn.SetReadDeadline(time.Now().Add(15 * time.Second))
		_, payload, err := readPacket(conn)
		if err != nil {
			break
		}
		if len(payload) < 1 || payload[0] != 0x03 { // COM_QUERY
			break
		}
		query := string(payload[1:])
		sess.Touch("QUERY")
		if evidence, ok := contentrules.EvaluateMySQLQuery(query); ok {
			l.shared.emit(addr, "sqli_attempt", "suspicious query on unauthenticated mysql session", evidence)
		}
		writePacket(conn, 2, makeAuthErrorPacket())
	}

	l.shared.checkPortScan(sess, "port_scan")
}
