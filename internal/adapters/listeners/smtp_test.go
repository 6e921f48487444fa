package listeners

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/sentryhive/internal/domain"
)

func TestSMTPListenerAuthBruteforce(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewSMTP(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		reader := bufio.NewReader(conn)
		reader.ReadString('\n')
		conn.Write([]byte("EHLO attacker\r\n"))
		reader.ReadString('\n')
		conn.Write([]byte("AUTH LOGIN\r\n"))
		reader.ReadString('\n')
		conn.Close()
	}

	select {
	case ev := <-events:
		assert.Equal(t, "smtp_bruteforce", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a bruteforce observation event")
	}
}

func TestSMTPListenerSessionFactsOnQuit(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewSMTP(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	reader.ReadString('\n')
	conn.Write([]byte("QUIT\r\n"))
	reader.ReadString('\n')
	conn.Close()

	select {
	case ev := <-events:
		assert.Equal(t, "port_scan", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a port_scan observation event")
	}
}

// TestSMTPListenerRelayAttemptWithoutData replicates the relay-probing
// scenario of EHLO/MAIL/six RCPT TO across four distinct domains/QUIT with
// no DATA at all: the close-time content rule must still fire from the
// QUIT case, not only from the end-of-DATA "." case.
func TestSMTPListenerRelayAttemptWithoutData(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewSMTP(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	reader.ReadString('\n')

	conn.Write([]byte("EHLO attacker\r\n"))
	reader.ReadString('\n')
	conn.Write([]byte("MAIL FROM:<a@attacker.example>\r\n"))
	reader.ReadString('\n')

	domains := []string{"one.example", "two.example", "three.example", "four.example"}
	for i := 0; i < 6; i++ {
		conn.Write([]byte("RCPT TO:<user" + strconv.Itoa(i) + "@" + domains[i%len(domains)] + ">\r\n"))
		reader.ReadString('\n')
	}

	conn.Write([]byte("QUIT\r\n"))
	reader.ReadString('\n')
	conn.Close()

	select {
	case ev := <-events:
		assert.Equal(t, "smtp_relay_attempt", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected an smtp_relay_attempt observation event on QUIT with no DATA")
	}
}
