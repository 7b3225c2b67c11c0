package metrics

import (
	"net/http"
	"time"
)

// NullMetrics is a no-op implementation of MetricsCollector
type NullMetrics struct{}

// NewNullMetrics creates a new NullMetrics instance
func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

func (nm *NullMetrics) IncrementRequestsSent(kind string)              {}
func (nm *NullMetrics) IncrementFramesValid()                          {}
func (nm *NullMetrics) IncrementFramesDropped(reason string)           {}
func (nm *NullMetrics) IncrementSnapshots(kind string)                 {}
func (nm *NullMetrics) IncrementMQTTPublishes()                        {}
func (nm *NullMetrics) IncrementMQTTErrors()                           {}
func (nm *NullMetrics) SetQueueDepth(depth int)                        {}
func (nm *NullMetrics) SetBusStale(stale bool)                         {}
func (nm *NullMetrics) ObserveExchangeDuration(duration time.Duration) {}

// Handler answers 404, there is nothing to expose
func (nm *NullMetrics) Handler() http.Handler {
	return http.NotFoundHandler()
}

// Compile-time verification that NullMetrics implements MetricsCollector
var _ MetricsCollector = (*NullMetrics)(nil)
