// Package metrics holds the Prometheus collectors for the catalogue.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the catalogue's metrics under one registry. A nil *Collector is valid and
// records nothing, so components can be built without metrics in tests and Lambdas.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	decisions     *prometheus.CounterVec
	jwksFetches   *prometheus.CounterVec
	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	changes       *prometheus.CounterVec
}

// New creates a collector whose metrics are prefixed with namespace.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorizer_decisions_total",
			Help:      "Authorization decisions by effect and reason.",
		}, []string{"effect", "reason"}),
		jwksFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_fetches_total",
			Help:      "Signing key set fetches by outcome.",
		}, []string{"outcome"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Table operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Table operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_projected_total",
			Help:      "Change stream records projected by action.",
		}, []string{"action"}),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.decisions,
		c.jwksFetches,
		c.storeOps,
		c.storeDuration,
		c.changes,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) ObserveDecision(effect, reason string) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(effect, reason).Inc()
}

func (c *Collector) ObserveJWKSFetch(outcome string) {
	if c == nil {
		return
	}
	c.jwksFetches.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveStore(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.storeOps.WithLabelValues(operation, outcome).Inc()
	c.storeDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collector) ObserveChange(action string) {
	if c == nil {
		return
	}
	c.changes.WithLabelValues(action).Inc()
}
