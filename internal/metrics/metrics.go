package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ebilling"

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAuth    = "auth_failed"
	OutcomeSkipped = "skipped"
)

// Metrics holds the prometheus collectors of the service on its own registry
type Metrics struct {
	registry *prometheus.Registry

	ProviderRequests    *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	ProviderLogins      *prometheus.CounterVec
	DocumentsSubmitted  *prometheus.CounterVec
	DocumentsReconciled *prometheus.CounterVec
	UsageIncrements     *prometheus.CounterVec
	AlertsRaised        *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Calls to the e-billing provider by operation and outcome",
		}, []string{"operation", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of calls to the e-billing provider",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		ProviderLogins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_logins_total",
			Help:      "Provider authentications by outcome",
		}, []string{"outcome"}),
		DocumentsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_submitted_total",
			Help:      "Document submissions by kind and outcome",
		}, []string{"kind", "outcome"}),
		DocumentsReconciled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_reconciled_total",
			Help:      "Documents moved by the reconcile pass, by resulting status",
		}, []string{"status"}),
		UsageIncrements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_increments_total",
			Help:      "Documents counted against usage periods by bucket",
		}, []string{"bucket"}),
		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts created by type",
		}, []string{"type"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveProvider records one provider call
func (m *Metrics) ObserveProvider(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(operation, outcome).Inc()
	m.ProviderLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveLogin counts one provider authentication
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.ProviderLogins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSubmission(kind, outcome string) {
	if m == nil {
		return
	}
	m.DocumentsSubmitted.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveReconciled(status string) {
	if m == nil {
		return
	}
	m.DocumentsReconciled.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveUsage(bucket string) {
	if m == nil {
		return
	}
	m.UsageIncrements.WithLabelValues(bucket).Inc()
}

func (m *Metrics) ObserveAlert(alertType string) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(alertType).Inc()
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
