package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts cache outcomes per namespace. A nil *Metrics records nothing.
type Metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// NewMetrics creates the cache counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plaza",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"namespace"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plaza",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"namespace"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plaza",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of cache store failures",
			},
			[]string{"namespace"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.errors)
	}
	return m
}

func (m *Metrics) hit(namespace string) {
	if m != nil {
		m.hits.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) miss(namespace string) {
	if m != nil {
		m.misses.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) failure(namespace string) {
	if m != nil {
		m.errors.WithLabelValues(namespace).Inc()
	}
}
