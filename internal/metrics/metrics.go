// Package metrics exposes Prometheus collectors for the API server and the
// feed engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yapp"

// Metrics groups every collector on one registry.
type Metrics struct {
	registry          *prometheus.Registry
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	RealtimeClients   prometheus.Gauge
	RealtimeDropped   prometheus.Counter
	EngineOutcomes    *prometheus.CounterVec
	PushFramesDropped prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RealtimeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Number of connected push channel subscribers",
		}),
		RealtimeDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_total",
			Help:      "Push frames dropped because a subscriber buffer was full",
		}),
		EngineOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_outcomes_total",
			Help:      "Optimistic operation outcomes by operation and outcome",
		}, []string{"operation", "outcome"}),
		PushFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_frames_malformed_total",
			Help:      "Push frames the client could not decode",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe implements feed.Observer.
func (m *Metrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.EngineOutcomes.WithLabelValues(operation, outcome).Inc()
}

// SubscriberJoined and SubscriberLeft track the realtime gauge.
func (m *Metrics) SubscriberJoined() {
	if m == nil {
		return
	}
	m.RealtimeClients.Inc()
}

func (m *Metrics) SubscriberLeft() {
	if m == nil {
		return
	}
	m.RealtimeClients.Dec()
}

// FrameDropped counts a frame discarded for a slow subscriber.
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.RealtimeDropped.Inc()
}

// GinMiddleware records request counts and latency keyed by the route
// template, so path parameters do not explode label cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPLatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
