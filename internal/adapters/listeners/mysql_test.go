package listeners

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/sentryhive/internal/domain"
)

func fakeAuthResponse(username string) []byte {
	b := make([]byte, 32)
	b = append(b, []byte(username)...)
	b = append(b, 0)
	return b
}

func TestMySQLListenerAuthAlwaysFailsAndBruteforces(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewMySQL(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	addr := "127.0.0.1:" + strconv.Itoa(l.cl.ln.Addr().(*net.TCPAddr).Port)

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		_, _, err = readPacket(conn)
		require.NoError(t, err)
		require.NoError(t, writePacket(conn, 1, fakeAuthResponse("root")))
		seq, payload, err := readPacket(conn)
		require.NoError(t, err)
		_ = seq
		assert.Equal(t, byte(0xff), payload[0])
		conn.Close()
	}

	select {
	case ev := <-events:
		assert.Equal(t, "mysql_auth_attempt", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a bruteforce observation event")
	}
}
