// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secrets_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secrets_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "code"})

	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secrets_auth_attempts_total",
		Help: "Authentication attempts by method and outcome.",
	}, []string{"method", "outcome"})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "secrets_sessions_swept_total",
		Help: "Expired sessions removed by the sweeper.",
	})
)

// Instrument wraps h so its requests are counted and timed under route.
func Instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		httpDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(httpRequests.MustCurryWith(labels), h),
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
