package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for partition routing and lifecycle.
type Metrics struct {
	HandleCacheSize      prometheus.Gauge
	HandleOpens          *prometheus.CounterVec
	CatalogDegraded      prometheus.Counter
	CatalogCacheLookups  *prometheus.CounterVec
	ResolveOutcomes      *prometheus.CounterVec
	CloneDuration        prometheus.Histogram
	DropDuration         prometheus.Histogram
	LifecyclePublishFail prometheus.Counter
}

var lifecycleBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// New registers the partition metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HandleCacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "voterstore_partition_handles",
			Help: "Number of materialized partition handles",
		}),
		HandleOpens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voterstore_partition_handle_opens_total",
			Help: "Partition open attempts by result",
		}, []string{"result"}),
		CatalogDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "voterstore_catalog_degraded_total",
			Help: "Catalog listings that fell back to an empty result",
		}),
		CatalogCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voterstore_catalog_cache_lookups_total",
			Help: "Catalog cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		ResolveOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voterstore_partition_resolve_total",
			Help: "Partition resolutions by outcome",
		}, []string{"outcome"}),
		CloneDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voterstore_partition_clone_duration_seconds",
			Help:    "Duration of master-to-tenant partition clones",
			Buckets: lifecycleBuckets,
		}),
		DropDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voterstore_partition_drop_duration_seconds",
			Help:    "Duration of partition drops",
			Buckets: lifecycleBuckets,
		}),
		LifecyclePublishFail: f.NewCounter(prometheus.CounterOpts{
			Name: "voterstore_partition_event_publish_failures_total",
			Help: "Lifecycle events that could not be published",
		}),
	}
}

// SetHandleCacheSize records the current handle count.
func (m *Metrics) SetHandleCacheSize(n int) {
	m.HandleCacheSize.Set(float64(n))
}

// IncrementHandleOpen records one partition open attempt.
func (m *Metrics) IncrementHandleOpen(ok bool) {
	if ok {
		m.HandleOpens.WithLabelValues("ok").Inc()
		return
	}
	m.HandleOpens.WithLabelValues("error").Inc()
}

// IncrementCatalogDegraded records a catalog listing that failed.
func (m *Metrics) IncrementCatalogDegraded() {
	m.CatalogDegraded.Inc()
}

// IncrementCatalogCache records a cache lookup result: hit, miss or error.
func (m *Metrics) IncrementCatalogCache(result string) {
	m.CatalogCacheLookups.WithLabelValues(result).Inc()
}

// IncrementResolve records a routing outcome (selected or an error code).
func (m *Metrics) IncrementResolve(outcome string) {
	m.ResolveOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveClone records the duration of a clone.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveClone(start time.Time) {
	m.CloneDuration.Observe(time.Since(start).Seconds())
}

// ObserveDrop records the duration of a drop.
func (m *Metrics) ObserveDrop(start time.Time) {
	m.DropDuration.Observe(time.Since(start).Seconds())
}

// IncrementPublishFailure records a lifecycle event that was not delivered.
func (m *Metrics) IncrementPublishFailure() {
	m.LifecyclePublishFail.Inc()
}
