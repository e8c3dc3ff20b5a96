// Package metrics wraps Prometheus collectors for the ledger sync layer:
// polling reads, write lifecycles, notifications and reconciliation cascades.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the collectors. A nil *Registry is valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	reads         *prometheus.CounterVec
	readLatency   *prometheus.HistogramVec
	writes        *prometheus.CounterVec
	writesPending *prometheus.GaugeVec
	notifications *prometheus.CounterVec
	refetches     *prometheus.CounterVec
	staleRaces    *prometheus.CounterVec
}

// New creates a registry under the given namespace.
func New(namespace string) *Registry {
	if namespace == "" {
		namespace = "osb"
	}

	r := &Registry{registry: prometheus.NewRegistry()}

	r.reads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "read",
			Name:      "total",
			Help:      "Ledger reads by subsystem, endpoint and result",
		},
		[]string{"subsystem", "endpoint", "result"},
	)
	r.readLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "read",
			Name:      "duration_seconds",
			Help:      "Ledger read latency",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"subsystem", "endpoint"},
	)
	r.writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "write",
			Name:      "total",
			Help:      "Write operations by subsystem, operation and terminal phase",
		},
		[]string{"subsystem", "operation", "phase"},
	)
	r.writesPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "write",
			Name:      "in_flight",
			Help:      "Non-terminal write operations per subsystem",
		},
		[]string{"subsystem"},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "total",
			Help:      "Outcome notifications emitted",
		},
		[]string{"subsystem", "kind"},
	)
	r.refetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "refetch_total",
			Help:      "Refetches triggered by reconciliation cascades",
		},
		[]string{"subsystem"},
	)
	r.staleRaces = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "stale_total",
			Help:      "Cascades that ended with the ledger still disagreeing",
		},
		[]string{"subsystem"},
	)

	r.registry.MustRegister(
		r.reads, r.readLatency, r.writes, r.writesPending,
		r.notifications, r.refetches, r.staleRaces,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) ObserveRead(subsystem, endpoint string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.reads.WithLabelValues(subsystem, endpoint, result).Inc()
	r.readLatency.WithLabelValues(subsystem, endpoint).Observe(d.Seconds())
}

func (r *Registry) WriteStarted(subsystem string) {
	if r == nil {
		return
	}
	r.writesPending.WithLabelValues(subsystem).Inc()
}

func (r *Registry) WriteSettled(subsystem, operation, phase string) {
	if r == nil {
		return
	}
	r.writesPending.WithLabelValues(subsystem).Dec()
	r.writes.WithLabelValues(subsystem, operation, phase).Inc()
}

func (r *Registry) Notified(subsystem, kind string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(subsystem, kind).Inc()
}

func (r *Registry) CascadeRefetch(subsystem string) {
	if r == nil {
		return
	}
	r.refetches.WithLabelValues(subsystem).Inc()
}

func (r *Registry) StaleRace(subsystem string) {
	if r == nil {
		return
	}
	r.staleRaces.WithLabelValues(subsystem).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
