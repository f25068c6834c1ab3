package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
type Metrics struct {
	Registered       prometheus.Counter
	Updated          prometheus.Counter
	DelegatesAdded   prometheus.Counter
	DelegatesRemoved prometheus.Counter
	Deactivated      prometheus.Counter
	Failures         *prometheus.CounterVec
	ResolveDuration  prometheus.Histogram
	MutationDuration prometheus.Histogram
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
}

// New creates a Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		Registered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "did_registry_registered_total",
			Help: "Total number of identifiers registered",
		}),
		Updated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "did_registry_updated_total",
			Help: "Total number of document updates",
		}),
		DelegatesAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "did_registry_delegates_added_total",
			Help: "Total number of delegates added",
		}),
		DelegatesRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "did_registry_delegates_removed_total",
			Help: "Total number of delegates removed",
		}),
		Deactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "did_registry_deactivated_total",
			Help: "Total number of identifiers deactivated",
		}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "did_registry_operation_failures_total",
			Help: "Operation failures by error code",
		}, []string{"operation", "code"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "did_registry_resolve_duration_seconds",
			Help:    "Duration of resolve operations (read critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		MutationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "did_registry_mutation_duration_seconds",
			Help:    "Duration of serialized mutating operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "did_registry_resolve_cache_hits_total",
			Help: "Resolve cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "did_registry_resolve_cache_misses_total",
			Help: "Resolve cache misses",
		}),
	}
}

// ObserveResolve records the duration of a resolve operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// ObserveMutation records the duration of a mutating operation.
func (m *Metrics) ObserveMutation(start time.Time) {
	m.MutationDuration.Observe(time.Since(start).Seconds())
}

// IncrementFailure records a failed operation by error code.
func (m *Metrics) IncrementFailure(operation, code string) {
	m.Failures.WithLabelValues(operation, code).Inc()
}
