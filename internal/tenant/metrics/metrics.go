package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for tenant lifecycle operations.
type Metrics struct {
	PartitionsProvisioned prometheus.Counter
	TenantsRemoved        prometheus.Counter
	PartitionsDropped     prometheus.Counter
	ProvisionDuration     prometheus.Histogram
	RemoveDuration        prometheus.Histogram
}

// New registers the tenant metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PartitionsProvisioned: f.NewCounter(prometheus.CounterOpts{
			Name: "voterstore_tenant_partitions_provisioned_total",
			Help: "Total number of tenant-private partitions provisioned",
		}),
		TenantsRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "voterstore_tenants_removed_total",
			Help: "Total number of tenant teardowns that dropped at least one partition",
		}),
		PartitionsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voterstore_tenant_partitions_dropped_total",
			Help: "Total number of tenant-private partitions dropped by teardowns",
		}),
		ProvisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voterstore_tenant_provision_duration_seconds",
			Help:    "Duration of tenant partition provisioning, clone included",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RemoveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voterstore_tenant_remove_duration_seconds",
			Help:    "Duration of tenant teardowns",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveProvision records a successful provisioning.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProvision(start time.Time) {
	m.PartitionsProvisioned.Inc()
	m.ProvisionDuration.Observe(time.Since(start).Seconds())
}

// ObserveRemove records a teardown and how many partitions it dropped.
func (m *Metrics) ObserveRemove(start time.Time, dropped int) {
	if dropped > 0 {
		m.TenantsRemoved.Inc()
		m.PartitionsDropped.Add(float64(dropped))
	}
	m.RemoveDuration.Observe(time.Since(start).Seconds())
}
