package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	claimdMetricsOnce sync.Once
	claimdRegistry    *ClaimdMetrics
)

// ClaimdMetrics wraps collectors tracking claim issuance health.
type ClaimdMetrics struct {
	claims        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	buildDuration *prometheus.HistogramVec
	entries       *prometheus.GaugeVec
	persistErrors prometheus.Counter
	swept         prometheus.Counter
	pauseEngaged  prometheus.Gauge
}

// Claimd exposes the metrics registry for claimd.
func Claimd() *ClaimdMetrics {
	claimdMetricsOnce.Do(func() {
		claimdRegistry = &ClaimdMetrics{
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "claimd",
				Name:      "claims_total",
				Help:      "Count of claim operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "airdrop",
				Subsystem: "claimd",
				Name:      "claim_duration_seconds",
				Help:      "Latency distribution for claim operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "airdrop",
				Subsystem: "claimd",
				Name:      "build_duration_seconds",
				Help:      "Latency distribution for transfer transaction construction.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "airdrop",
				Subsystem: "claimd",
				Name:      "entries",
				Help:      "Number of allocation entries in each claim state.",
			}, []string{"state"}),
			persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "claimd",
				Name:      "persist_errors_total",
				Help:      "Count of snapshot writes that failed and were rolled back.",
			}),
			swept: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "claimd",
				Name:      "swept_total",
				Help:      "Count of expired reservations released back to available.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "airdrop",
				Subsystem: "claimd",
				Name:      "pause_engaged",
				Help:      "Indicates whether new claim issuance is paused (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			claimdRegistry.claims,
			claimdRegistry.latency,
			claimdRegistry.buildDuration,
			claimdRegistry.entries,
			claimdRegistry.persistErrors,
			claimdRegistry.swept,
			claimdRegistry.pauseEngaged,
		)
	})
	return claimdRegistry
}

// Observe records the outcome and latency of a claim operation.
func (m *ClaimdMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op := labelValue(operation)
	m.claims.WithLabelValues(op, labelValue(outcome)).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveBuild records how long the transaction builder took.
func (m *ClaimdMetrics) ObserveBuild(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.buildDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetEntries publishes the per-state entry counts.
func (m *ClaimdMetrics) SetEntries(available, reserved, consumed int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues("available").Set(float64(available))
	m.entries.WithLabelValues("reserved").Set(float64(reserved))
	m.entries.WithLabelValues("consumed").Set(float64(consumed))
}

// RecordPersistError increments the snapshot failure counter.
func (m *ClaimdMetrics) RecordPersistError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

// RecordSwept adds released reservations to the sweep counter.
func (m *ClaimdMetrics) RecordSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

// RecordPause toggles the pause gauge.
func (m *ClaimdMetrics) RecordPause(active bool) {
	if m == nil {
		return
	}
	if active {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func labelValue(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
