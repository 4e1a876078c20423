package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	auctionMetricsOnce sync.Once
	auctionRegistry    *AuctionMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "phx",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// AuctionMetrics tracks command outcomes of the settlement engine.
type AuctionMetrics struct {
	commands    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	settlements *prometheus.CounterVec
	refunds     prometheus.Counter
}

// Auction returns the singleton auction metrics registry.
func Auction() *AuctionMetrics {
	auctionMetricsOnce.Do(func() {
		auctionRegistry = &AuctionMetrics{
			commands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "auction",
				Name:      "commands_total",
				Help:      "Commands applied by the executor segmented by command and outcome.",
			}, []string{"command", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "auction",
				Name:      "rejections_total",
				Help:      "Rejected commands segmented by command and error code.",
			}, []string{"command", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "phx",
				Subsystem: "auction",
				Name:      "command_duration_seconds",
				Help:      "Latency distribution for executor commands.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"command"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "auction",
				Name:      "settlements_total",
				Help:      "Settled auctions segmented by outcome.",
			}, []string{"outcome"}),
			refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "phx",
				Subsystem: "auction",
				Name:      "refunds_total",
				Help:      "Refund transfers issued to bidders.",
			}),
		}
		prometheus.MustRegister(
			auctionRegistry.commands,
			auctionRegistry.rejections,
			auctionRegistry.latency,
			auctionRegistry.settlements,
			auctionRegistry.refunds,
		)
	})
	return auctionRegistry
}

// ObserveCommand records a command outcome. code is empty on success.
func (m *AuctionMetrics) ObserveCommand(command, code string, committed bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "committed"
	if !committed {
		outcome = "rejected"
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	if code != "" {
		m.rejections.WithLabelValues(command, code).Inc()
	}
	m.latency.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordSettlement counts a settlement under outcome, typically "paid" or
// "reserve_not_met".
func (m *AuctionMetrics) RecordSettlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

// RecordRefunds adds n refund transfers.
func (m *AuctionMetrics) RecordRefunds(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.refunds.Add(float64(n))
}
