package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects HTTP request metrics per route.
type Metrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewMetrics creates the HTTP collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plaza",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plaza",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total number of HTTP requests answered with an error code",
			},
			[]string{"route", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "plaza",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "plaza",
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests being served",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.failures, m.duration, m.inflight)
	}
	return m
}

// Begin marks a request as started and returns the function that records its outcome.
func (m *Metrics) Begin() func(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return func(string, string, int, time.Duration) {}
	}
	m.inflight.Inc()
	return func(method, route string, status int, elapsed time.Duration) {
		m.inflight.Dec()
		m.RecordRequest(method, route, status, elapsed)
	}
}

// RecordRequest records a finished request.
func (m *Metrics) RecordRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordFailure records an error code returned by a route.
func (m *Metrics) RecordFailure(route, code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(route, code).Inc()
}
