package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/domain"
)

// OverflowWriter persists observation events and canonical records to disk
// when the pipeline's channels saturate for longer than the backpressure
// timeout, so a burst of traffic degrades to "delayed" rather than
// "dropped". Disabled (a no-op) when path is empty.
type OverflowWriter struct {
	file    *os.File
	writer  *bufio.Writer
	mu      sync.Mutex
	count   atomic.Int64
	enabled bool
	path    string
}

// OverflowEntry is one line of the overflow file: a tagged, timestamped
// envelope around either an observation event or a canonical record.
type OverflowEntry struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewOverflowWriter(path string) (*OverflowWriter, error) {
	if path == "" {
		return &OverflowWriter{enabled: false}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("overflow writer initialized")

	return &OverflowWriter{
		file:    file,
		writer:  bufio.NewWriterSize(file, 64*1024),
		enabled: true,
		path:    path,
	}, nil
}

// WriteObservation persists an observation event that could not be
// queued for classification within the backpressure window.
func (w *OverflowWriter) WriteObservation(ev *domain.ObservationEvent) error {
	if !w.enabled {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return w.write("observation", data)
}

// WriteRecord persists a canonical record that could not be dispatched
// to the report sink/observers within the backpressure window.
func (w *OverflowWriter) WriteRecord(rec domain.CanonicalAttackRecord) error {
	if !w.enabled {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return w.write("record", data)
}

func (w *OverflowWriter) write(entryType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := OverflowEntry{Type: entryType, Timestamp: time.Now(), Data: data}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}

	w.count.Add(1)

	if w.count.Load()%100 == 0 {
		if err := w.writer.Flush(); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
	}

	return nil
}

func (w *OverflowWriter) Flush() error {
	if !w.enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *OverflowWriter) Close() error {
	if !w.enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}

	if count := w.count.Load(); count > 0 {
		log.Warn().Int64("overflow_count", count).Str("path", w.path).Msg("overflow file contains undelivered entries")
	}

	return w.file.Close()
}

func (w *OverflowWriter) Count() int64   { return w.count.Load() }
func (w *OverflowWriter) Enabled() bool  { return w.enabled }

// QuarantineWriter records the observation event that crashed a pipeline
// worker, alongside the panic value, for forensic follow-up. Disabled (a
// no-op) when path is empty.
type QuarantineWriter struct {
	file    *os.File
	writer  *bufio.Writer
	mu      sync.Mutex
	count   atomic.Int64
	enabled bool
	path    string
}

// QuarantineEntry is one quarantined worker panic.
type QuarantineEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	WorkerID    int             `json:"worker_id"`
	PanicError  string          `json:"panic_error"`
	Observation json.RawMessage `json:"observation"`
}

func NewQuarantineWriter(path string) (*QuarantineWriter, error) {
	if path == "" {
		return &QuarantineWriter{enabled: false}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("quarantine writer initialized for toxic observations")

	return &QuarantineWriter{
		file:    file,
		writer:  bufio.NewWriterSize(file, 16*1024),
		enabled: true,
		path:    path,
	}, nil
}

func (w *QuarantineWriter) WriteToxicObservation(workerID int, panicErr interface{}, ev *domain.ObservationEvent) error {
	if !w.enabled {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var obsData json.RawMessage
	if ev != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			obsData = []byte(`{"error": "failed to serialize observation"}`)
		} else {
			obsData = data
		}
	} else {
		obsData = []byte(`null`)
	}

	panicStr := "unknown panic"
	if panicErr != nil {
		switch v := panicErr.(type) {
		case error:
			panicStr = v.Error()
		case string:
			panicStr = v
		default:
			panicStr = fmt.Sprintf("%v", v)
		}
	}

	qe := QuarantineEntry{Timestamp: time.Now(), WorkerID: workerID, PanicError: panicStr, Observation: obsData}

	line, err := json.Marshal(qe)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}

	w.count.Add(1)

	log.Warn().Int("worker_id", workerID).Str("panic", panicStr).Int64("quarantine_count", w.count.Load()).Msg("toxic observation quarantined")

	return nil
}

func (w *QuarantineWriter) Close() error {
	if !w.enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if count := w.count.Load(); count > 0 {
		log.Warn().Int64("toxic_count", count).Str("path", w.path).Msg("quarantine file contains toxic observations requiring analysis")
	}
	return w.file.Close()
}

func (w *QuarantineWriter) Count() int64  { return w.count.Load() }
func (w *QuarantineWriter) Enabled() bool { return w.enabled }
