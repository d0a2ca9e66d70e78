package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Panics          prometheus.Counter
}

// New creates and registers the HTTP metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voterstore_http_requests_total",
			Help: "HTTP requests by route, status and client platform",
		}, []string{"method", "route", "status", "platform"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voterstore_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Name: "voterstore_http_panics_total",
			Help: "Handler panics recovered by middleware",
		}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(method, route string, status int, platform string, start time.Time) {
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status), platform).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}

// IncrementPanics counts a recovered panic.
func (m *Metrics) IncrementPanics() {
	m.Panics.Inc()
}
