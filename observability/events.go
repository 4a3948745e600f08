package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	transitions *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking claim state transitions.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "events",
				Name:      "transitions_total",
				Help:      "Count of allocation entry state transitions segmented by source and target state.",
			}, []string{"from", "to"}),
		}
		prometheus.MustRegister(eventRegistry.transitions)
	})
	return eventRegistry
}

// RecordTransition increments the transition counter for the supplied edge.
func (m *eventMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(labelValue(from), labelValue(to)).Inc()
}
