package insight

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for insight_requests_total.
const (
	outcomeOK          = "ok"
	outcomeNoData      = "no_data"
	outcomeUnavailable = "unavailable"
	outcomeRejected    = "rejected"
)

// engineMetrics holds the Prometheus metrics owned by the Engine.
type engineMetrics struct {
	// requestsTotal counts Answer calls partitioned by audience and outcome.
	requestsTotal *prometheus.CounterVec

	// durationSeconds records Answer latency partitioned by outcome.
	durationSeconds *prometheus.HistogramVec

	// rerankFallbacksTotal counts retrievals that fell back to similarity order.
	rerankFallbacksTotal prometheus.Counter

	// isolationDropsTotal counts search hits discarded for belonging to
	// another owner. Any increase means a store filter is broken.
	isolationDropsTotal prometheus.Counter

	// contextDocuments records how many facts reached the generator.
	contextDocuments prometheus.Histogram
}

// newEngineMetrics registers the engine metrics against reg. A nil reg
// registers into a private registry so the Engine stays usable in tests.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &engineMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthlens",
			Subsystem: "insight",
			Name:      "requests_total",
			Help:      "Insight requests completed, partitioned by audience and outcome.",
		}, []string{"audience", "outcome"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthlens",
			Subsystem: "insight",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of insight requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),

		rerankFallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "healthlens",
			Subsystem: "insight",
			Name:      "rerank_fallbacks_total",
			Help:      "Retrievals that used similarity order because the reranker failed.",
		}),

		isolationDropsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "healthlens",
			Subsystem: "insight",
			Name:      "isolation_drops_total",
			Help:      "Search hits discarded because they belonged to a different owner.",
		}),

		contextDocuments: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "healthlens",
			Subsystem: "insight",
			Name:      "context_documents",
			Help:      "Number of facts passed to the generator per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
	}
}
