package output

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/sentryhive/internal/domain"
)

func testRecord(addr string) domain.CanonicalAttackRecord {
	return domain.CanonicalAttackRecord{
		SourceAddress: addr,
		Kind:          domain.KindPortScan,
		Category:      domain.CategoryReconnaissance,
		Severity:      2,
		Timestamp:     time.Now(),
	}
}

func TestAttackLogSplitsAdmittedAndSuppressed(t *testing.T) {
	dir := t.TempDir()
	attacksPath := filepath.Join(dir, "attacks.json")
	suspiciousPath := filepath.Join(dir, "suspicious.json")

	log, err := NewAttackLog(attacksPath, suspiciousPath)
	require.NoError(t, err)

	log.OnRecord(testRecord("10.0.0.1"), true)
	log.OnRecord(testRecord("10.0.0.2"), false)
	require.NoError(t, log.Close())

	assertLineCount(t, attacksPath, 1)
	assertLineCount(t, suspiciousPath, 1)
}

func TestAttackLogEmptyPathDiscards(t *testing.T) {
	log, err := NewAttackLog("", "")
	require.NoError(t, err)
	log.OnRecord(testRecord("10.0.0.1"), true)
	require.NoError(t, log.Close())
}

func assertLineCount(t *testing.T, path string, want int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	got := 0
	for scanner.Scan() {
		var rec domain.CanonicalAttackRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		got++
	}
	assert.Equal(t, want, got)
}

func TestRingBufferRetainsLatestN(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.OnRecord(testRecord("10.0.0."+string(rune('1'+i))), true)
	}
	assert.Equal(t, 3, rb.Count())
	latest := rb.Latest(0)
	assert.Len(t, latest, 3)
	assert.Equal(t, "10.0.0.5", latest[len(latest)-1].SourceAddress)
}
