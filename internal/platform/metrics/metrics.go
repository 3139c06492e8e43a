package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several instances (one per test) can
// coexist. All methods are safe on a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	recordsMutate  *prometheus.CounterVec
	batches        *prometheus.CounterVec
	auditFailures  *prometheus.CounterVec
	exportsExpired prometheus.Counter
}

func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrmprivacy_http_requests_total",
				Help: "HTTP requests served, by status code",
			},
			[]string{"code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hrmprivacy_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrmprivacy_request_transitions_total",
				Help: "Lifecycle transitions of erasure, export and retention work items",
			},
			[]string{"kind", "status"},
		),
		recordsMutate: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrmprivacy_records_mutated_total",
				Help: "Records deleted, anonymized, pseudonymized or archived",
			},
			[]string{"method", "table"},
		),
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrmprivacy_retention_batches_total",
				Help: "Retention deletion batches, by result",
			},
			[]string{"result"},
		),
		auditFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrmprivacy_audit_failures_total",
				Help: "Audit events that could not be persisted",
			},
			[]string{"event_type"},
		),
		exportsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hrmprivacy_exports_expired_total",
				Help: "Export files removed after expiry",
			},
		),
	}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	code := strconv.Itoa(status)
	c.httpRequests.WithLabelValues(code).Inc()
	c.httpDuration.WithLabelValues(code).Observe(duration.Seconds())
}

func (c *Collector) Transition(kind, status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(kind, status).Inc()
}

func (c *Collector) RecordsMutated(method, table string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.recordsMutate.WithLabelValues(method, table).Add(float64(n))
}

func (c *Collector) RetentionBatch(result string) {
	if c == nil {
		return
	}
	c.batches.WithLabelValues(result).Inc()
}

func (c *Collector) AuditFailure(eventType string) {
	if c == nil {
		return
	}
	c.auditFailures.WithLabelValues(eventType).Inc()
}

func (c *Collector) ExportsExpired(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.exportsExpired.Add(float64(n))
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
