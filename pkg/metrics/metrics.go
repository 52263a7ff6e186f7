// Package metrics exposes Prometheus collectors for HTTP traffic, login
// attempts and authorization decisions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/txn2/realty-platform/pkg/auth"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "realty"

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "realty").
	Namespace string

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the registry collectors are registered with. A fresh
	// registry is created when nil.
	Registry *prometheus.Registry
}

// Metrics holds the platform's collectors.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authDecisions   *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
}

// New creates and registers the collectors.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		registry: cfg.Registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled",
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   cfg.Buckets,
		}, []string{"method", "route"}),

		authDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "auth",
			Name:      "decisions_total",
			Help:      "Authorization decisions by kind, deciding signal and outcome",
		}, []string{"kind", "signal", "allowed"}),

		loginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by method and result",
		}, []string{"method", "result"}),
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveDecision counts an authorization decision.
func (m *Metrics) ObserveDecision(_ *http.Request, kind auth.Kind, d auth.Decision) {
	signal := d.Signal
	if signal == "" {
		signal = "none"
	}
	m.authDecisions.WithLabelValues(string(kind), signal, strconv.FormatBool(d.Allowed)).Inc()
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(method string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.loginAttempts.WithLabelValues(method, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Verify interface compliance.
var _ auth.Observer = (*Metrics)(nil)
