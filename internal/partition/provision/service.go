// Package provision is the only writer of partition existence: it clones
// masters into tenant-private partitions and drops them again.
package provision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voterstore/internal/partition/metrics"
	"voterstore/internal/partition/models"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/sentinel"
)

var tracer = otel.Tracer("voterstore/internal/partition/provision")

// PartitionStore is the slice of store.Store the provisioner drives.
type PartitionStore interface {
	ListPartitions(ctx context.Context, database string) ([]string, error)
	PartitionExists(ctx context.Context, database, name string) (bool, error)
	ClonePartition(ctx context.Context, database, source, target string) error
	DropPartition(ctx context.Context, database, name string) (bool, error)
}

// HandleEvictor forgets cached handles for dropped partitions.
type HandleEvictor interface {
	Forget(database, name string)
}

// Service provisions partitions inside one logical database.
type Service struct {
	store     PartitionStore
	database  string
	handles   HandleEvictor
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

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

// WithHandleEvictor evicts cached handles after drops.
func WithHandleEvictor(h HandleEvictor) Option {
	return func(s *Service) {
		s.handles = h
	}
}

// WithEventPublisher publishes lifecycle events after committed changes.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// New constructs a provisioner for database.
func New(store PartitionStore, database string, opts ...Option) *Service {
	s := &Service{
		store:    store,
		database: database,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clone copies master into target. It is a no-op when target already exists
// and fails with CodeInvalidSource when master does not.
//
// The copy is one server-side transaction and is not abandoned when the
// caller goes away.
func (s *Service) Clone(ctx context.Context, master, target string) (err error) {
	master, err = models.ValidateName(master)
	if err != nil {
		return err
	}
	target, err = models.ValidateName(target)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "partition.clone", trace.WithAttributes(
		attribute.String("partition.source", master),
		attribute.String("partition.target", target),
	))
	defer func() { endSpan(span, err) }()

	exists, err := s.store.PartitionExists(ctx, s.database, master)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check source partition")
	}
	if !exists {
		return dErrors.New(dErrors.CodeInvalidSource, "source partition does not exist")
	}
	exists, err = s.store.PartitionExists(ctx, s.database, target)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check target partition")
	}
	if exists {
		span.SetAttributes(attribute.Bool("partition.existed", true))
		return nil
	}

	start := time.Now()
	err = s.store.ClonePartition(ctx, s.database, master, target)
	switch {
	case errors.Is(err, sentinel.ErrAlreadyExists):
		// A concurrent clone won the race; the target is there either way.
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeInvalidSource, "source partition does not exist")
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clone partition")
	}
	if s.metrics != nil {
		s.metrics.ObserveClone(start)
	}
	s.logger.InfoContext(ctx, "partition cloned",
		"database", s.database,
		"source", master,
		"partition", target,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.publish(ctx, Event{Type: EventCloned, Partition: target, Source: master})
	return nil
}

// Drop deletes name and all of its records. Dropping a missing partition
// succeeds.
func (s *Service) Drop(ctx context.Context, name string) (err error) {
	_, err = s.drop(ctx, name)
	return err
}

func (s *Service) drop(ctx context.Context, name string) (dropped bool, err error) {
	name, err = models.ValidateName(name)
	if err != nil {
		return false, err
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "partition.drop", trace.WithAttributes(
		attribute.String("partition.name", name),
	))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	dropped, err = s.store.DropPartition(ctx, s.database, name)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to drop partition")
	}
	if s.handles != nil {
		s.handles.Forget(s.database, name)
	}
	if !dropped {
		return false, nil
	}
	if s.metrics != nil {
		s.metrics.ObserveDrop(start)
	}
	s.logger.InfoContext(ctx, "partition dropped",
		"database", s.database,
		"partition", name,
	)
	s.publish(ctx, Event{Type: EventDropped, Partition: name})
	return true, nil
}

// ProvisionTenant clones master into the tenant's private copy and returns
// the private partition name.
func (s *Service) ProvisionTenant(ctx context.Context, tenantKey, master string) (string, error) {
	target, err := TenantPartitionName(tenantKey, master)
	if err != nil {
		return "", err
	}
	if err := s.Clone(ctx, master, target); err != nil {
		return "", err
	}
	return target, nil
}

// TenantPartitions lists the private partitions owned by tenantKey.
func (s *Service) TenantPartitions(ctx context.Context, tenantKey string) ([]string, error) {
	if err := ValidateTenantKey(tenantKey); err != nil {
		return nil, err
	}
	names, err := s.store.ListPartitions(ctx, s.database)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list partitions")
	}
	owned := []string{}
	for _, name := range names {
		if owner, ok := OwnerOf(name); ok && owner == tenantKey {
			owned = append(owned, name)
		}
	}
	return owned, nil
}

// DropTenant drops every private partition owned by tenantKey and returns the
// names it removed.
func (s *Service) DropTenant(ctx context.Context, tenantKey string) ([]string, error) {
	owned, err := s.TenantPartitions(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	dropped := []string{}
	for _, name := range owned {
		removed, err := s.drop(ctx, name)
		if err != nil {
			return dropped, err
		}
		if removed {
			dropped = append(dropped, name)
		}
	}
	return dropped, nil
}

// publish never fails the caller: the partition change is already committed.
func (s *Service) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Database = s.database
	event.OccurredAt = s.now().UTC()
	if event.Tenant == "" {
		event.Tenant, _ = OwnerOf(event.Partition)
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementPublishFailure()
		}
		s.logger.WarnContext(ctx, "failed to publish partition event",
			"event_type", event.Type,
			"partition", event.Partition,
			"error", err,
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
