// Package metrics holds process-level Prometheus instruments. Module
// specific instruments live next to their modules.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP transport metrics for the application.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// New creates and registers all transport metrics.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "contrava_http_requests_total",
			Help: "Total HTTP requests by method, route pattern, and status class",
		}, []string{"method", "route", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contrava_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "contrava_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
}
