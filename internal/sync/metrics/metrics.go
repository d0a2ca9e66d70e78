package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upsert outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeApplied   = "applied"
	OutcomeDropped   = "dropped"
	OutcomeBadChange = "bad_change"
	OutcomeException = "exception"
)

// Metrics provides observability for the sync protocol, labelled by client
// platform so field-app traffic can be told apart from operator tooling.
type Metrics struct {
	ExportPages     *prometheus.CounterVec
	ExportItems     *prometheus.CounterVec
	ExportDuration  prometheus.Histogram
	UpsertOutcomes  *prometheus.CounterVec
	UpsertBatchSize prometheus.Histogram
}

// New registers the sync metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ExportPages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voterstore_sync_export_pages_total",
			Help: "Export pages served",
		}, []string{"platform"}),
		ExportItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voterstore_sync_export_items_total",
			Help: "Records returned by export",
		}, []string{"platform"}),
		ExportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voterstore_sync_export_duration_seconds",
			Help:    "Duration of export page queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		UpsertOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voterstore_sync_upsert_changes_total",
			Help: "Bulk upsert changes by outcome",
		}, []string{"outcome", "platform"}),
		UpsertBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voterstore_sync_upsert_batch_size",
			Help:    "Number of changes per bulk upsert request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

// ObserveExport records one served page.
func (m *Metrics) ObserveExport(platform string, items int, start time.Time) {
	m.ExportPages.WithLabelValues(platform).Inc()
	m.ExportItems.WithLabelValues(platform).Add(float64(items))
	m.ExportDuration.Observe(time.Since(start).Seconds())
}

// IncrementUpsert records the outcome of one change.
func (m *Metrics) IncrementUpsert(outcome, platform string) {
	m.UpsertOutcomes.WithLabelValues(outcome, platform).Inc()
}

// ObserveBatch records the size of an accepted batch.
func (m *Metrics) ObserveBatch(size int) {
	m.UpsertBatchSize.Observe(float64(size))
}
