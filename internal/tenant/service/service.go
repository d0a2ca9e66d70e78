// Package service orchestrates tenant lifecycle flows on top of the
// partition provisioner.
package service

import (
	"context"
	"log/slog"
	"time"

	tenantmetrics "voterstore/internal/tenant/metrics"
	"voterstore/internal/tenant/models"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/requestcontext"
)

// Provisioner creates and removes tenant-private partitions.
type Provisioner interface {
	ProvisionTenant(ctx context.Context, tenantKey, master string) (string, error)
	TenantPartitions(ctx context.Context, tenantKey string) ([]string, error)
	DropTenant(ctx context.Context, tenantKey string) ([]string, error)
}

// Service is the tenant lifecycle entry point used by the admin API.
type Service struct {
	provisioner Provisioner
	logger      *slog.Logger
	metrics     *tenantmetrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for lifecycle audit lines.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics enables lifecycle metrics.
func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(provisioner Provisioner, opts ...Option) *Service {
	s := &Service{
		provisioner: provisioner,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddPartition gives tenantKey a private copy of master. Repeating the call
// returns the same partition without copying again.
func (s *Service) AddPartition(ctx context.Context, tenantKey, master string) (*models.PartitionProvisioned, error) {
	start := time.Now()
	name, err := s.provisioner.ProvisionTenant(ctx, tenantKey, master)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveProvision(start)
	}
	s.logger.InfoContext(ctx, "tenant partition provisioned",
		"tenant_key", tenantKey,
		"master", master,
		"partition", name,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.PartitionProvisioned{
		TenantKey:   tenantKey,
		PartitionID: name,
		Master:      master,
	}, nil
}

// Get returns the partitions tenantKey owns. A tenant with no private
// partitions is reported as not found.
func (s *Service) Get(ctx context.Context, tenantKey string) (*models.Tenant, error) {
	names, err := s.provisioner.TenantPartitions(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	tenant := &models.Tenant{Key: tenantKey, Partitions: names}
	if !tenant.HasPartitions() {
		return nil, dErrors.New(dErrors.CodeNotFound, "tenant has no partitions")
	}
	return tenant, nil
}

// Remove drops every private partition of tenantKey. Removing a tenant that
// owns nothing succeeds with an empty list.
func (s *Service) Remove(ctx context.Context, tenantKey string) (*models.TenantRemoved, error) {
	start := time.Now()
	dropped, err := s.provisioner.DropTenant(ctx, tenantKey)
	if err != nil {
		if len(dropped) > 0 {
			s.logger.ErrorContext(ctx, "tenant teardown incomplete",
				"tenant_key", tenantKey,
				"dropped", dropped,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveRemove(start, len(dropped))
	}
	s.logger.InfoContext(ctx, "tenant removed",
		"tenant_key", tenantKey,
		"dropped", dropped,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.TenantRemoved{TenantKey: tenantKey, Dropped: dropped}, nil
}
