package reputation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "reputation.db")
	cfg.ExpectedItems = 1000
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFrequencyHintUnknownAddressIsZero(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, 0, s.FrequencyHint("203.0.113.1"))
}

func TestRecordReportIncrementsFrequencyHint(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	assert.NoError(t, s.RecordReport("203.0.113.2", "port_scan", now))
	assert.Equal(t, 1, s.FrequencyHint("203.0.113.2"))

	assert.NoError(t, s.RecordReport("203.0.113.2", "ssh_bruteforce", now.Add(time.Minute)))
	assert.Equal(t, 2, s.FrequencyHint("203.0.113.2"))
}

func TestRecordReportTracksDistinctAddressCount(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	s.RecordReport("203.0.113.3", "port_scan", now)
	s.RecordReport("203.0.113.4", "port_scan", now)
	s.RecordReport("203.0.113.3", "port_scan", now)

	assert.Equal(t, int64(2), s.Count())
}

func TestFrequencyHintSurvivesReopen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "reputation.db")
	cfg.ExpectedItems = 1000

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.RecordReport("203.0.113.5", "ddos", time.Now()))
	require.NoError(t, s.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.FrequencyHint("203.0.113.5"))
}
