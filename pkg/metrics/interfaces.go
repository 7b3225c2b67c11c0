package metrics

import (
	"net/http"
	"time"
)

// MetricsCollector defines the interface for collecting bridge metrics.
// Implementations:
//   - PrometheusMetrics: client_golang collectors on a private registry
//   - NullMetrics: no-op implementation when metrics are disabled
type MetricsCollector interface {
	// IncrementRequestsSent counts a request written to the bus, by kind
	IncrementRequestsSent(kind string)

	// IncrementFramesValid counts a reply that passed length and CRC checks
	IncrementFramesValid()

	// IncrementFramesDropped counts a discarded reply, by failure kind
	IncrementFramesDropped(reason string)

	// IncrementSnapshots counts a decoded snapshot, by kind
	IncrementSnapshots(kind string)

	// IncrementMQTTPublishes counts a successful publish
	IncrementMQTTPublishes()

	// IncrementMQTTErrors counts a failed publish
	IncrementMQTTErrors()

	// SetQueueDepth records the number of requests waiting for the bus
	SetQueueDepth(depth int)

	// SetBusStale records whether the watchdog considers the bus silent
	SetBusStale(stale bool)

	// ObserveExchangeDuration records time from write to validated reply
	ObserveExchangeDuration(duration time.Duration)

	// Handler exposes the metrics in Prometheus text format
	Handler() http.Handler
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector
var _ MetricsCollector = (*PrometheusMetrics)(nil)
