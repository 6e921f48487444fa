package listeners

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/sentryhive/internal/domain"
)

func TestHTTPListenerLoginBruteforce(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewHTTP(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	base := "http://127.0.0.1:" + strconv.Itoa(l.Port()) + "/login"

	for i := 0; i < 3; i++ {
		resp, err := http.PostForm(base, url.Values{"username": {"admin"}, "password": {"wrong"}})
		require.NoError(t, err)
		resp.Body.Close()
	}

	select {
	case ev := <-events:
		assert.Equal(t, "http_bruteforce", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a bruteforce observation event")
	}
}

func TestHTTPListenerDirectoryListingLure(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewHTTP(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(l.Port()) + "/uploads/")
	require.NoError(t, err)
	resp.Body.Close()

	select {
	case ev := <-events:
		assert.Equal(t, "directory_listing", ev.InternalKind)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a directory_listing observation event")
	}
}

func TestHTTPListenerExcludedPathSkipsDetection(t *testing.T) {
	tr := newTestTracker()
	defer tr.Stop()

	l := NewHTTP(0, tr)
	events := make(chan *domain.ObservationEvent, 16)
	require.NoError(t, l.Start(context.Background(), func(ev *domain.ObservationEvent) { events <- ev }))
	defer l.Stop(context.Background())

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(l.Port()) + "/monitor")
	require.NoError(t, err)
	resp.Body.Close()

	select {
	case ev := <-events:
		t.Fatalf("expected no observation event for excluded path, got %s", ev.InternalKind)
	case <-time.After(300 * time.Millisecond):
	}
}
