// Package service implements the sync protocol field apps use: paginated
// delta export and last-write-wins bulk upsert against one partition.
package service

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voterstore/internal/sync/metrics"
)

var tracer = otel.Tracer("voterstore/internal/sync/service")

// PageLimits bound export page sizes.
type PageLimits struct {
	Min     int
	Max     int
	Default int
}

// DefaultPageLimits are used when no limits are configured.
var DefaultPageLimits = PageLimits{Min: 1, Max: 500, Default: 100}

// DefaultMaxBatch caps the number of changes in one bulk upsert.
const DefaultMaxBatch = 1000

// Service runs export and upsert. It holds no per-partition state; the
// caller passes the routed partition handle on every call.
type Service struct {
	limits   PageLimits
	maxBatch int
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

type Option func(*Service)

// WithPageLimits overrides the export page size bounds.
func WithPageLimits(l PageLimits) Option {
	return func(s *Service) {
		s.limits = l
	}
}

// WithMaxBatch overrides the bulk upsert batch cap.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		s.maxBatch = n
	}
}

// WithClock sets the clock that stamps written records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a sync service.
func New(opts ...Option) *Service {
	s := &Service{
		limits:   DefaultPageLimits,
		maxBatch: DefaultMaxBatch,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the effective page limits.
func (s *Service) Limits() PageLimits {
	return s.limits
}

// writeTime is read once per change, at write time. The request time is
// taken before the batch starts and would hide late writes in a long batch
// from any export whose serverTime falls between the two.
func (s *Service) writeTime() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
