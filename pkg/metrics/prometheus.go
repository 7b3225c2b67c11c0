package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storion"

// PrometheusMetrics tracks bridge metrics with client_golang collectors.
// Each instance owns its registry so several can coexist in tests.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requestsSent     *prometheus.CounterVec
	framesValid      prometheus.Counter
	framesDropped    *prometheus.CounterVec
	snapshots        *prometheus.CounterVec
	mqttPublishes    prometheus.Counter
	mqttErrors       prometheus.Counter
	queueDepth       prometheus.Gauge
	busStale         prometheus.Gauge
	exchangeDuration prometheus.Histogram
}

// NewPrometheusMetrics creates and registers the bridge collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		requestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_sent_total",
			Help:      "Read requests written to the RS-485 bus",
		}, []string{"kind"}),
		framesValid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_valid_total",
			Help:      "Replies that passed length and CRC validation",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Replies discarded, by failure kind",
		}, []string{"reason"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Decoded snapshots, by kind",
		}, []string{"kind"}),
		mqttPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "Successful MQTT publishes",
		}),
		mqttErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_errors_total",
			Help:      "Failed MQTT publishes",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Requests waiting for the bus",
		}),
		busStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_stale",
			Help:      "1 while no valid frame arrived within the watchdog timeout",
		}),
		exchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from request write to validated reply",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2},
		}),
	}

	pm.registry.MustRegister(
		pm.requestsSent,
		pm.framesValid,
		pm.framesDropped,
		pm.snapshots,
		pm.mqttPublishes,
		pm.mqttErrors,
		pm.queueDepth,
		pm.busStale,
		pm.exchangeDuration,
	)
	return pm
}

func (pm *PrometheusMetrics) IncrementRequestsSent(kind string) {
	pm.requestsSent.WithLabelValues(kind).Inc()
}

func (pm *PrometheusMetrics) IncrementFramesValid() {
	pm.framesValid.Inc()
}

func (pm *PrometheusMetrics) IncrementFramesDropped(reason string) {
	pm.framesDropped.WithLabelValues(reason).Inc()
}

func (pm *PrometheusMetrics) IncrementSnapshots(kind string) {
	pm.snapshots.WithLabelValues(kind).Inc()
}

func (pm *PrometheusMetrics) IncrementMQTTPublishes() {
	pm.mqttPublishes.Inc()
}

func (pm *PrometheusMetrics) IncrementMQTTErrors() {
	pm.mqttErrors.Inc()
}

func (pm *PrometheusMetrics) SetQueueDepth(depth int) {
	pm.queueDepth.Set(float64(depth))
}

// SetBusStale sets the stale gauge (1 = stale, 0 = frames arriving)
func (pm *PrometheusMetrics) SetBusStale(stale bool) {
	if stale {
		pm.busStale.Set(1)
	} else {
		pm.busStale.Set(0)
	}
}

func (pm *PrometheusMetrics) ObserveExchangeDuration(duration time.Duration) {
	pm.exchangeDuration.Observe(duration.Seconds())
}

// Handler serves the private registry
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}
