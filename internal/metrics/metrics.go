// Package metrics defines the Prometheus counters exported by oskrba.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oskrba"

// Metrics holds the counters for one process.
type Metrics struct {
	registry *prometheus.Registry

	loads        *prometheus.CounterVec
	loadFailures prometheus.Counter
	saves        *prometheus.CounterVec
	broadcasts   *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

// New creates the counters and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_loads_total",
			Help:      "State loads, by the source that satisfied them.",
		}, []string{"source"}),
		loadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_load_failures_total",
			Help:      "State loads that could not be satisfied by any source.",
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_saves_total",
			Help:      "State saves, by result.",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_messages_total",
			Help:      "Sync channel messages, by direction.",
		}, []string{"direction"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Blob API requests, by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(m.loads, m.loadFailures, m.saves, m.broadcasts, m.requests)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Load counts a load satisfied by source.
func (m *Metrics) Load(source string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(source).Inc()
}

// LoadFailed counts a load that returned an error.
func (m *Metrics) LoadFailed() {
	if m == nil {
		return
	}
	m.loadFailures.Inc()
}

// Save counts a save attempt.
func (m *Metrics) Save(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.saves.WithLabelValues(result).Inc()
}

// Message counts a sync channel message. direction is "sent", "received" or "ignored".
func (m *Metrics) Message(direction string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(direction).Inc()
}

// Request counts a blob API request.
func (m *Metrics) Request(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
