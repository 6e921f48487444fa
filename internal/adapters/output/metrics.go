// Package output provides the observability and durable-logging adapters
// that sit downstream of the detection pipeline: Prometheus metrics and
// the buffered JSON attack-log writer.
package output

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// PrometheusMetrics is the ports.MetricsCollector implementation, exposing
// counters and gauges for every stage of the pipeline: observations in,
// reports out, suppressions, spool depth, and heartbeat health.
type PrometheusMetrics struct {
	observations *prometheus.CounterVec
	reports      *prometheus.CounterVec
	suppressed   prometheus.Counter
	spoolDepth   prometheus.Gauge
	hbFailures   prometheus.Gauge

	server *http.Server
	mu     sync.Mutex
}

// MetricsConfig configures the dedicated metrics HTTP server.
type MetricsConfig struct {
	Port string
	Path string
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Port: ":9090", Path: "/metrics"}
}

// NewPrometheusMetrics registers the sentryhive_* metric family under the
// given namespace (defaults to "sentryhive").
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "sentryhive"
	}

	m := &PrometheusMetrics{}

	m.observations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_total",
		Help:      "Total observation events emitted by protocol listeners, by protocol",
	}, []string{"protocol"})

	m.reports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_total",
		Help:      "Total canonical attack records admitted for reporting, by kind",
	}, []string{"kind"})

	m.suppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "suppressed_total",
		Help:      "Total canonical attack records suppressed by the throttle cache",
	})

	m.spoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "spool_depth",
		Help:      "Current number of entries pending in the offline spool",
	})

	m.hbFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heartbeat_consecutive_failures",
		Help:      "Consecutive heartbeat failures against the backend API",
	})

	return m
}

func (m *PrometheusMetrics) IncrementObservations(protocol string) {
	m.observations.WithLabelValues(protocol).Inc()
}

func (m *PrometheusMetrics) IncrementReports(kind string) {
	m.reports.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) IncrementSuppressed() {
	m.suppressed.Inc()
}

func (m *PrometheusMetrics) SetSpoolDepth(depth int) {
	m.spoolDepth.Set(float64(depth))
}

func (m *PrometheusMetrics) SetHeartbeatFailures(count int) {
	m.hbFailures.Set(float64(count))
}

// StartServer binds the dedicated metrics endpoint in the background.
func (m *PrometheusMetrics) StartServer(config MetricsConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(config.Path, promhttp.Handler())

	m.server = &http.Server{
		Addr:              config.Port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", config.Port).Str("path", config.Path).Msg("starting prometheus metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	return nil
}

func (m *PrometheusMetrics) StopServer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return m.server.Close()
	}
	return nil
}
