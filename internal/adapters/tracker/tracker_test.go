package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAuthAttemptFiresAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BruteForceAttempts = 3
	cfg.BruteForceCooldown = time.Minute
	tr := New(cfg)
	defer tr.Stop()

	addr := "10.0.0.1"
	now := time.Now()

	assert.False(t, tr.RecordAuthAttempt(addr, "root", now))
	assert.False(t, tr.RecordAuthAttempt(addr, "admin", now.Add(time.Second)))
	assert.True(t, tr.RecordAuthAttempt(addr, "test", now.Add(2*time.Second)))
}

func TestRecordAuthAttemptRespectsCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BruteForceAttempts = 1
	cfg.BruteForceCooldown = time.Minute
	tr := New(cfg)
	defer tr.Stop()

	addr := "10.0.0.2"
	now := time.Now()

	assert.True(t, tr.RecordAuthAttempt(addr, "root", now))
	// Still past the threshold count-wise, but within cooldown: no re-fire.
	assert.False(t, tr.RecordAuthAttempt(addr, "root", now.Add(5*time.Second)))
	assert.True(t, tr.RecordAuthAttempt(addr, "root", now.Add(2*time.Minute)))
}

func TestAuthAttemptCountAccumulates(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Stop()

	addr := "10.0.0.3"
	now := time.Now()
	tr.RecordAuthAttempt(addr, "a", now)
	tr.RecordAuthAttempt(addr, "b", now)

	assert.Equal(t, 2, tr.AuthAttemptCount(addr))
}

func TestRecordConnectionFiresAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RapidConnCount = 3
	cfg.RapidConnWindow = time.Minute
	cfg.RapidConnCooldown = time.Minute
	tr := New(cfg)
	defer tr.Stop()

	addr := "10.0.0.4"
	now := time.Now()

	assert.False(t, tr.RecordConnection(addr, now))
	assert.False(t, tr.RecordConnection(addr, now.Add(time.Second)))
	assert.True(t, tr.RecordConnection(addr, now.Add(2*time.Second)))
}

func TestRecordConnectionWindowExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RapidConnCount = 2
	cfg.RapidConnWindow = 10 * time.Millisecond
	cfg.RapidConnCooldown = time.Minute
	tr := New(cfg)
	defer tr.Stop()

	addr := "10.0.0.5"
	now := time.Now()

	assert.False(t, tr.RecordConnection(addr, now))
	// Second connect lands well outside the rapid window, so the
	// sliding window should have dropped the first connect.
	assert.False(t, tr.RecordConnection(addr, now.Add(100*time.Millisecond)))
}

func TestCleanupPurgesStaleWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BruteForceMaxAge = 10 * time.Millisecond
	tr := New(cfg)
	defer tr.Stop()

	addr := "10.0.0.6"
	now := time.Now()
	tr.RecordAuthAttempt(addr, "x", now)

	tr.Cleanup(now.Add(time.Hour))

	// After a purge the window is recreated fresh, so the attempt
	// counter resets to zero rather than retaining history.
	assert.Equal(t, 0, tr.AuthAttemptCount(addr))
}

func TestDifferentAddressesAreIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BruteForceAttempts = 2
	tr := New(cfg)
	defer tr.Stop()

	now := time.Now()
	tr.RecordAuthAttempt("10.0.0.7", "a", now)
	assert.Equal(t, 0, tr.AuthAttemptCount("10.0.0.8"))
}
