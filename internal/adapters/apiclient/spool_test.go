package apiclient

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/sentryhive/internal/domain"
)

func TestSpoolAppendAndPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline_attacks.json")
	s, err := NewSpool(path, true)
	require.NoError(t, err)

	require.NoError(t, s.Append(domain.SpoolEntry{
		Record:        domain.CanonicalAttackRecord{SourceAddress: "1.1.1.1", Kind: domain.KindPortScan},
		StoredAt:      time.Now(),
		PendingUpload: true,
	}))

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, "1.1.1.1", pending[0].Record.SourceAddress)
}

func TestSpoolClearOnStartTruncatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline_attacks.json")
	s, err := NewSpool(path, false)
	require.NoError(t, err)
	require.NoError(t, s.Append(domain.SpoolEntry{Record: domain.CanonicalAttackRecord{SourceAddress: "2.2.2.2"}, PendingUpload: true}))

	cleared, err := NewSpool(path, true)
	require.NoError(t, err)
	pending, err := cleared.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplayWithRewritesOnlyRemaining(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline_attacks.json")
	s, err := NewSpool(path, true)
	require.NoError(t, err)

	require.NoError(t, s.Append(domain.SpoolEntry{Record: domain.CanonicalAttackRecord{SourceAddress: "3.3.3.1"}, PendingUpload: true}))
	require.NoError(t, s.Append(domain.SpoolEntry{Record: domain.CanonicalAttackRecord{SourceAddress: "3.3.3.2"}, PendingUpload: true}))

	uploaded, remaining, err := s.ReplayWith(func(rec domain.CanonicalAttackRecord) error {
		if rec.SourceAddress == "3.3.3.1" {
			return nil
		}
		return errors.New("still down")
	})

	require.NoError(t, err)
	assert.Equal(t, 1, uploaded)
	assert.Equal(t, 1, remaining)

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "3.3.3.2", pending[0].Record.SourceAddress)
}

func TestReplayWithAllSucceedEmptiesSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline_attacks.json")
	s, err := NewSpool(path, true)
	require.NoError(t, err)
	require.NoError(t, s.Append(domain.SpoolEntry{Record: domain.CanonicalAttackRecord{SourceAddress: "4.4.4.4"}, PendingUpload: true}))

	_, remaining, err := s.ReplayWith(func(domain.CanonicalAttackRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, 0, s.Len())
}
