package authcore

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric event names recorded through Metrics.Event.
const (
	MetricSignUp               = "sign_up"
	MetricSignInSuccess        = "sign_in_success"
	MetricSignInFailure        = "sign_in_failure"
	MetricRefreshSuccess       = "refresh_success"
	MetricRefreshFailure       = "refresh_failure"
	MetricSignOut              = "sign_out"
	MetricVerifyRevoked        = "verify_revoked"
	MetricPasswordReset        = "password_reset"
	MetricPasswordChange       = "password_change"
	MetricRevocationCheckError = "revocation_check_error"
)

// Metrics records auth events and HTTP traffic on a Prometheus registry.
type Metrics struct {
	authEvents   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	registry     *prometheus.Registry
}

// NewMetrics builds and registers the collectors on a fresh registry, so
// each constructed instance (including per-test instances) stands alone.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	metrics := &Metrics{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Authentication lifecycle events.",
		}, []string{"event"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		registry: registry,
	}
	registry.MustRegister(metrics.authEvents, metrics.httpRequests, metrics.httpDuration)
	return metrics
}

// Event increments the counter for the named auth event.
func (metrics *Metrics) Event(event string) {
	if metrics == nil {
		return
	}
	metrics.authEvents.WithLabelValues(event).Inc()
}

// AuthEventCounter exposes the counter for one event so tests can read it
// back through prometheus testutil.
func (metrics *Metrics) AuthEventCounter(event string) prometheus.Counter {
	return metrics.authEvents.WithLabelValues(event)
}

// Handler exposes the registry for a /metrics endpoint.
func (metrics *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
	return func(contextGin *gin.Context) {
		handler.ServeHTTP(contextGin.Writer, contextGin.Request)
	}
}

// Instrument observes request counts and latency per route.
func (metrics *Metrics) Instrument() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		elapsed := time.Since(startTime).Seconds()
		path := contextGin.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(contextGin.Writer.Status())
		metrics.httpRequests.WithLabelValues(contextGin.Request.Method, path, status).Inc()
		metrics.httpDuration.WithLabelValues(contextGin.Request.Method, path, status).Observe(elapsed)
	}
}
