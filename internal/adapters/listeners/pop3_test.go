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

func TestPOP3ListenerPassBruteforce(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewPOP3(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		reader := bufio.NewReader(conn)
		reader.ReadString('\n')
		conn.Write([]byte("USER bob\r\n"))
		reader.ReadString('\n')
		conn.Write([]byte("PASS wrong\r\n"))
		reader.ReadString('\n')
		conn.Close()
	}

	select {
	case ev := <-events:
		assert.Equal(t, "pop3_bruteforce", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a bruteforce observation event")
	}
}
