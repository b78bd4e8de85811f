package verification

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps collectors tracking verification worker health.
type Metrics struct {
	attempts      *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cyclesSkipped prometheus.Counter
	expired       prometheus.Counter
	running       prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsRegistry *Metrics
)

// WorkerMetrics returns the lazily-initialised metrics registry for the
// verification worker.
func WorkerMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsRegistry = &Metrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "redmatrix",
				Subsystem: "verification",
				Name:      "attempts_total",
				Help:      "Count of reconciliation attempts segmented by outcome.",
			}, []string{"outcome"}),
			cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "redmatrix",
				Subsystem: "verification",
				Name:      "cycle_duration_seconds",
				Help:      "Latency distribution for completed worker cycles.",
				Buckets:   prometheus.DefBuckets,
			}),
			cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "redmatrix",
				Subsystem: "verification",
				Name:      "cycles_skipped_total",
				Help:      "Count of worker cycles dropped because a cycle was already running.",
			}),
			expired: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "redmatrix",
				Subsystem: "verification",
				Name:      "expired_total",
				Help:      "Count of records swept into the EXPIRED state.",
			}),
			running: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "redmatrix",
				Subsystem: "verification",
				Name:      "worker_running",
				Help:      "Indicates whether a worker cycle is currently executing (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			metricsRegistry.attempts,
			metricsRegistry.cycleDuration,
			metricsRegistry.cyclesSkipped,
			metricsRegistry.expired,
			metricsRegistry.running,
		)
	})
	return metricsRegistry
}

// RecordAttempt increments the attempt counter for the supplied outcome.
func (m *Metrics) RecordAttempt(outcome string) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "unknown"
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// ObserveCycle records the duration of a completed worker cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

// RecordSkip increments the dropped-cycle counter.
func (m *Metrics) RecordSkip() {
	if m == nil {
		return
	}
	m.cyclesSkipped.Inc()
}

// RecordExpired adds swept records to the expired counter.
func (m *Metrics) RecordExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expired.Add(float64(count))
}

// SetRunning toggles the worker running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}
