package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	transfers *prometheus.CounterVec
	published *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed events and payouts.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of vault payouts segmented by denomination and reason.",
			}, []string{"denom", "reason"}),
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.transfers, eventRegistry.published)
	})
	return eventRegistry
}

// RecordTransfer increments the payout counter.
func (m *eventMetrics) RecordTransfer(denom, reason string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(denom))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.transfers.WithLabelValues(normalized, reason).Inc()
}

// RecordEvent increments the published event counter.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.published.WithLabelValues(eventType).Inc()
}
