package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical route name rather than the
// raw URL path, which carries patient ids.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
type serverMetrics struct {
	// httpRequestsTotal counts handled requests by method, route and status.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records request latency by method and route.
	httpDurationSeconds *prometheus.HistogramVec

	// rebuildsTotal counts finished background rebuilds by outcome.
	rebuildsTotal *prometheus.CounterVec

	// rebuildsInFlight is the number of background rebuilds running.
	rebuildsInFlight prometheus.Gauge
}

// newServerMetrics registers all server metrics against reg. Tests pass a
// fresh prometheus.Registry.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthlens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthlens",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", labelHandler}),

		rebuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthlens",
			Subsystem: "rebuild",
			Name:      "total",
			Help:      "Background index rebuilds finished, partitioned by outcome.",
		}, []string{"outcome"}),

		rebuildsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "healthlens",
			Subsystem: "rebuild",
			Name:      "in_flight",
			Help:      "Number of background index rebuilds currently running.",
		}),
	}
}
