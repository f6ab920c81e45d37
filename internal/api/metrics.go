package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inigma_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inigma_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	secretOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inigma_secret_operations_total",
			Help: "Secret lifecycle operations by outcome.",
		},
		[]string{"op", "outcome"},
	)
	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inigma_rate_limited_requests_total",
			Help: "Requests rejected by the per-IP rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, secretOpsTotal, rateLimitedTotal)
}

// RegisterLiveSecretsGauge registers a gauge that tracks non-expired secrets.
func RegisterLiveSecretsGauge(countFn func() float64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "inigma_live_secrets",
			Help: "Number of stored secrets that have not expired.",
		},
		countFn,
	))
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
