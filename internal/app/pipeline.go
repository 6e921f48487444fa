// Package app wires the protocol listeners (C1), the classifier (C2), the
// throttle cache (C3), and the API client (C4) into one running process,
// and supervises their lifecycle (C5).
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

// ToxicObservation is an observation event that crashed a pipeline
// worker, held for possible reprocessing once the cause is understood.
type ToxicObservation struct {
	Event     *domain.ObservationEvent
	PanicErr  interface{}
	Timestamp time.Time
	WorkerID  int
}

// Pipeline is the concurrent C1->C2->C3->C4 worker pool: a fixed set of
// worker goroutines classify and throttle every observation event, and a
// single dispatcher goroutine delivers admitted records to the report
// sink, decoupling network I/O from the detection hot path.
//
// Adapted from internal/app/worker_pool.go: "N parallel detectors over a
// LogEntry" becomes "one classify step then one throttle step per
// ObservationEvent", the output channel carries CanonicalAttackRecord
// instead of Alert, and the DLQ/quarantine/overflow resilience machinery
// is kept as-is, since a classifier or throttle bug is exactly the kind
// of toxic-input panic that machinery exists to survive.
type Pipeline struct {
	workerCount int
	inputChan   chan *domain.ObservationEvent
	outputChan  chan domain.CanonicalAttackRecord
	bufferSize  int

	classifier ports.Classifier
	cache      ports.ThrottleCache
	sink       ports.ReportSink
	reputation ports.ReputationStore
	observers  []ports.AttackObserver
	metrics    ports.MetricsCollector

	submitTimeout   time.Duration
	useBackpressure bool

	dlqChan    chan *ToxicObservation
	dlqEnabled bool

	overflow        *OverflowWriter
	overflowEvents  atomic.Int64
	overflowRecords atomic.Int64

	quarantine *QuarantineWriter

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
	running  bool
	mu       sync.RWMutex
}

// PipelineConfig configures worker count, buffering, and resilience
// fallbacks.
type PipelineConfig struct {
	WorkerCount    int
	BufferSize     int
	SubmitTimeout  time.Duration
	EnableDLQ      bool
	DLQSize        int
	OverflowPath   string
	QuarantinePath string
}

// DefaultPipelineConfig returns production-sized defaults: a worker per
// protocol listener is wasteful at honeypot traffic volumes, so the pool
// is sized much smaller than the log-analysis ancestor's 32 workers.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		WorkerCount:   8,
		BufferSize:    4096,
		SubmitTimeout: 100 * time.Millisecond,
		EnableDLQ:     true,
		DLQSize:       256,
	}
}

// NewPipeline builds a pipeline. cache, sink, and classifier are required;
// reputation and the observer list may be nil/empty.
func NewPipeline(cfg PipelineConfig, classifier ports.Classifier, cache ports.ThrottleCache, sink ports.ReportSink, reputation ports.ReputationStore, observers []ports.AttackObserver, metrics ports.MetricsCollector) *Pipeline {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 100 * time.Millisecond
	}
	if cfg.DLQSize <= 0 {
		cfg.DLQSize = 100
	}

	p := &Pipeline{
		workerCount:     cfg.WorkerCount,
		inputChan:       make(chan *domain.ObservationEvent, cfg.BufferSize),
		outputChan:      make(chan domain.CanonicalAttackRecord, cfg.BufferSize),
		bufferSize:      cfg.BufferSize,
		classifier:      classifier,
		cache:           cache,
		sink:            sink,
		reputation:      reputation,
		observers:       observers,
		metrics:         metrics,
		submitTimeout:   cfg.SubmitTimeout,
		useBackpressure: cfg.SubmitTimeout > 0,
		dlqEnabled:      cfg.EnableDLQ,
		stopChan:        make(chan struct{}),
	}

	if cfg.EnableDLQ {
		p.dlqChan = make(chan *ToxicObservation, cfg.DLQSize)
	}

	if cfg.OverflowPath != "" {
		overflow, err := NewOverflowWriter(cfg.OverflowPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.OverflowPath).Msg("failed to create overflow writer")
		} else {
			p.overflow = overflow
		}
	}

	if cfg.QuarantinePath != "" {
		quarantine, err := NewQuarantineWriter(cfg.QuarantinePath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.QuarantinePath).Msg("failed to create quarantine writer")
		} else {
			p.quarantine = quarantine
		}
	}

	return p
}

// Start launches the worker goroutines and the dispatcher goroutine.
// Idempotent.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.dispatcher(ctx)

	log.Info().Int("workers", p.workerCount).Bool("dlq", p.dlqEnabled).Msg("pipeline started")
}

// worker classifies and throttles every event read from inputChan,
// recovering from and restarting after a panic in the classify/admit
// step.
func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	var current *domain.ObservationEvent

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("worker_id", id).Msg("pipeline worker panic recovered")

			if p.quarantine != nil && p.quarantine.Enabled() {
				if err := p.quarantine.WriteToxicObservation(id, r, current); err != nil {
					log.Error().Err(err).Int("worker_id", id).Msg("failed to quarantine toxic observation")
				}
			}

			if p.dlqEnabled && current != nil {
				select {
				case p.dlqChan <- &ToxicObservation{Event: current.Clone(), PanicErr: r, Timestamp: time.Now(), WorkerID: id}:
				default:
					log.Warn().Int("worker_id", id).Msg("DLQ full, toxic observation only in quarantine file")
				}
			}

			p.wg.Add(1)
			go p.worker(ctx, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case ev, ok := <-p.inputChan:
			if !ok {
				return
			}
			current = ev
			p.process(ev)
			current = nil
			domain.ReleaseObservationEvent(ev)
		}
	}
}

func (p *Pipeline) process(ev *domain.ObservationEvent) {
	frequencyHint := 0
	if p.reputation != nil {
		frequencyHint = p.reputation.FrequencyHint(ev.SourceAddress)
	}

	rec := p.classifier.Classify(ev, frequencyHint)
	rec.SourceAddress = ev.SourceAddress
	rec.Timestamp = ev.SessionTime

	decision := p.cache.Admit(rec)
	admitted := decision == ports.Admit

	if p.metrics != nil {
		p.metrics.IncrementObservations(ev.Protocol)
	}

	for _, obs := range p.observers {
		obs.OnRecord(rec, admitted)
	}

	if !admitted {
		if p.metrics != nil {
			p.metrics.IncrementSuppressed()
		}
		return
	}

	if p.reputation != nil {
		if err := p.reputation.RecordReport(rec.SourceAddress, string(rec.Kind), time.Now()); err != nil {
			log.Debug().Err(err).Str("addr", rec.SourceAddress).Msg("reputation record failed")
		}
	}
	if p.metrics != nil {
		p.metrics.IncrementReports(string(rec.Kind))
	}

	p.sendRecord(rec)
}

// sendRecord hands an admitted record to the dispatcher, backing off to
// the overflow file if the output channel stays full past submitTimeout.
func (p *Pipeline) sendRecord(rec domain.CanonicalAttackRecord) {
	select {
	case p.outputChan <- rec:
		return
	default:
	}

	if p.useBackpressure {
		timer := time.NewTimer(p.submitTimeout)
		select {
		case p.outputChan <- rec:
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if p.overflow != nil && p.overflow.Enabled() {
		if err := p.overflow.WriteRecord(rec); err != nil {
			log.Error().Err(err).Msg("failed to write record to overflow")
			return
		}
		p.overflowRecords.Add(1)
		return
	}

	log.Warn().Str("addr", rec.SourceAddress).Str("kind", string(rec.Kind)).Msg("record dropped: output channel full and no overflow configured")
}

// dispatcher delivers every admitted record to the report sink. Decoupled
// from the worker goroutines so a slow or unreachable backend never stalls
// classification/throttling.
func (p *Pipeline) dispatcher(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case rec, ok := <-p.outputChan:
			if !ok {
				return
			}
			if err := p.sink.SendReport(ctx, rec); err != nil {
				log.Debug().Err(err).Str("addr", rec.SourceAddress).Msg("report send failed (spooled by client)")
			}
		}
	}
}

// Submit hands an observation event to the pipeline, falling back to the
// overflow file if the input channel stays full past submitTimeout and no
// caller is willing to block. Returns false when the pool is stopped, or
// when the queue stays full and overflow is unavailable or fails.
func (p *Pipeline) Submit(ev *domain.ObservationEvent) bool {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		return false
	}

	select {
	case p.inputChan <- ev:
		return true
	default:
	}

	if p.useBackpressure {
		timer := time.NewTimer(p.submitTimeout)
		select {
		case p.inputChan <- ev:
			timer.Stop()
			return true
		case <-timer.C:
		}
	}

	if p.overflow != nil && p.overflow.Enabled() {
		if err := p.overflow.WriteObservation(ev); err != nil {
			log.Error().Err(err).Msg("failed to write observation to overflow")
			return false
		}
		p.overflowEvents.Add(1)
		domain.ReleaseObservationEvent(ev)
		return true
	}

	return false
}

// QueueLength returns the number of observation events currently waiting
// to be classified.
func (p *Pipeline) QueueLength() int { return len(p.inputChan) }

// DLQ returns the Dead Letter Queue channel of toxic observations, for an
// operator tool to drain and inspect.
func (p *Pipeline) DLQ() <-chan *ToxicObservation { return p.dlqChan }

// Stop performs a graceful shutdown: stops accepting new events, drains
// in-flight work, and closes the overflow/quarantine writers. Idempotent.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		close(p.stopChan)
		close(p.inputChan)
		p.wg.Wait()
		close(p.outputChan)
		if p.dlqChan != nil {
			close(p.dlqChan)
		}

		if p.overflow != nil {
			if err := p.overflow.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close overflow writer")
			}
		}
		if p.quarantine != nil {
			if err := p.quarantine.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close quarantine writer")
			}
		}

		overflowed := p.overflowEvents.Load() + p.overflowRecords.Load()
		if overflowed > 0 {
			log.Warn().Int64("overflow_events", p.overflowEvents.Load()).Int64("overflow_records", p.overflowRecords.Load()).Msg("pipeline stopped with items in overflow file")
		} else {
			log.Info().Msg("pipeline stopped")
		}
	})
}

// IsRunning reports whether the pipeline is actively accepting events.
func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
