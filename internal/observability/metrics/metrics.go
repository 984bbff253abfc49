package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels shared by the auth counters
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
	ResultLocked   = "locked"
	ResultError    = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantauth_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantauth_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	apiKeyResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantauth_apikey_resolutions_total",
		Help: "API key resolution attempts by result",
	}, []string{"result"})

	signins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantauth_signins_total",
		Help: "User signin attempts by result",
	}, []string{"result"})

	signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantauth_signups_total",
		Help: "User signup attempts by result",
	}, []string{"result"})

	refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantauth_token_refreshes_total",
		Help: "Refresh token rotations by result",
	}, []string{"result"})

	reuseDetections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantauth_refresh_reuse_detected_total",
		Help: "Refresh tokens presented after their lineage was rotated or ended",
	})

	tenantEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantauth_tenant_events_total",
		Help: "Tenant lifecycle events (register, rotate_key, revoke_key, delete)",
	}, []string{"event"})

	hashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantauth_password_hash_duration_seconds",
		Help:    "Time spent hashing or verifying passwords",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"op"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveAPIKeyResolution counts an API key lookup
func ObserveAPIKeyResolution(result string) {
	apiKeyResolutions.WithLabelValues(result).Inc()
}

// ObserveSignin counts a signin attempt
func ObserveSignin(result string) {
	signins.WithLabelValues(result).Inc()
}

// ObserveSignup counts a signup attempt
func ObserveSignup(result string) {
	signups.WithLabelValues(result).Inc()
}

// ObserveRefresh counts a refresh attempt
func ObserveRefresh(result string) {
	refreshes.WithLabelValues(result).Inc()
}

// ObserveReuseDetected counts a refresh token rejected by reuse detection
func ObserveReuseDetected() {
	reuseDetections.Inc()
}

// ObserveTenantEvent counts a tenant lifecycle event
func ObserveTenantEvent(event string) {
	tenantEvents.WithLabelValues(event).Inc()
}

// ObservePasswordHash records hashing cost; op is "hash" or "verify"
func ObservePasswordHash(op string, duration time.Duration) {
	hashDuration.WithLabelValues(op).Observe(duration.Seconds())
}
