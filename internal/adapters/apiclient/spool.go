package apiclient

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/domain"
)

// Spool is the offline-report store at logs/offline_attacks.json: an
// append-only file of enriched records that the report sender writes to
// on failure and the replay task rewrites after each pass.
type Spool struct {
	mu   sync.Mutex
	path string
}

// NewSpool opens the spool file at path, creating its directory, and
// clears any prior contents when clearOnStart is true (the spec's
// default: avoid replaying stale attacks after long downtime).
func NewSpool(path string, clearOnStart bool) (*Spool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Spool{path: path}

	if clearOnStart {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("offline spool cleared on start")
		return s, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds an entry to the spool. Writes are serialized by the
// spool-level lock, matching the single-writer guarantee the spec
// requires between the report sender and the replay task.
func (s *Spool) Append(entry domain.SpoolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// Pending returns every entry currently in the spool file. It does not
// filter on pending_upload: entries are appended as pending and a replay
// pass rewrites the file without the ones it uploaded.
func (s *Spool) Pending() ([]domain.SpoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAllLocked()
}

func (s *Spool) readAllLocked() ([]domain.SpoolEntry, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []domain.SpoolEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e domain.SpoolEntry
		if err := json.Unmarshal(line, &e); err != nil {
			log.Warn().Err(err).Msg("skipping malformed spool entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// ReplayWith applies send to every pending entry in order. Entries that
// succeed are dropped from the file; entries that fail stay pending.
// The file is rewritten once at the end of the pass, per the spec's
// "rewrite after each replay pass" rule, rather than per entry.
func (s *Spool) ReplayWith(send func(domain.CanonicalAttackRecord) error) (uploaded, remaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAllLocked()
	if err != nil {
		return 0, 0, err
	}

	kept := entries[:0]
	for _, e := range entries {
		if !e.PendingUpload {
			continue
		}
		if sendErr := send(e.Record); sendErr != nil {
			kept = append(kept, e)
			continue
		}
		e.PendingUpload = false
		uploaded++
	}

	if err := s.rewriteLocked(kept); err != nil {
		return uploaded, len(kept), err
	}
	return uploaded, len(kept), nil
}

func (s *Spool) rewriteLocked(entries []domain.SpoolEntry) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Len reports the number of entries currently on disk, pending or not.
func (s *Spool) Len() int {
	entries, err := s.Pending()
	if err != nil {
		return 0
	}
	return len(entries)
}
