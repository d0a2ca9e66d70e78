// Package router decides which partition a request touches and enforces
// tenant isolation before any record is read or written.
package router

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"voterstore/internal/partition/metrics"
	"voterstore/internal/partition/models"
	"voterstore/internal/partition/store"
	dErrors "voterstore/pkg/domain-errors"
	authmw "voterstore/pkg/platform/middleware/auth"
	"voterstore/pkg/platform/sentinel"
	pstrings "voterstore/pkg/platform/strings"
)

var tracer = otel.Tracer("voterstore/internal/partition/router")

// HandleProvider materializes partition handles. handles.Cache satisfies it.
type HandleProvider interface {
	HandleFor(ctx context.Context, database, name string) (store.Partition, error)
}

// Selection is the routing decision for one request.
type Selection struct {
	Database  string
	Partition string
	Handle    store.Partition
}

// Router resolves partitions inside one logical database.
type Router struct {
	handles          HandleProvider
	database         string
	defaultPartition string
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

type Option func(*Router)

// WithDefaultPartition is used when the caller has no permitted partitions
// and names none.
func WithDefaultPartition(name string) Option {
	return func(r *Router) {
		r.defaultPartition, _ = models.SanitizeName(name)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New constructs a router.
func New(handles HandleProvider, database string, opts ...Option) *Router {
	r := &Router{handles: handles, database: database, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allowed returns the sanitized permitted set: trimmed, reserved and invalid
// names removed, duplicates dropped with first-seen order kept.
func Allowed(id *authmw.Identity) []string {
	if id == nil {
		return nil
	}
	return pstrings.TrimUnique(id.Partitions, func(name string) bool {
		_, ok := models.SanitizeName(name)
		return ok
	})
}

// Resolve picks the partition for a request. An explicit requested name wins;
// otherwise a single permitted partition is used, then the configured
// default. Writes pass requireExplicit so they never land on an implied
// partition when the caller can reach more than one.
func (r *Router) Resolve(ctx context.Context, id *authmw.Identity, requested string, requireExplicit bool) (*Selection, error) {
	ctx, span := tracer.Start(ctx, "partition.resolve")
	defer span.End()

	sel, err := r.resolve(ctx, id, requested, requireExplicit)
	if err != nil {
		code := dErrors.CodeOf(err)
		span.SetStatus(codes.Error, string(code))
		r.observe(string(code))
		return nil, err
	}
	span.SetAttributes(attribute.String("partition.name", sel.Partition))
	r.observe("selected")
	return sel, nil
}

func (r *Router) resolve(ctx context.Context, id *authmw.Identity, requested string, requireExplicit bool) (*Selection, error) {
	allowed := Allowed(id)
	privileged := id != nil && id.Privileged

	candidate, explicit := models.SanitizeName(requested)
	if !explicit {
		switch {
		case len(allowed) > 1 || requireExplicit:
			return nil, dErrors.New(dErrors.CodeAmbiguousSelection, "partitionId is required")
		case len(allowed) == 1:
			candidate = allowed[0]
		case r.defaultPartition != "":
			candidate = r.defaultPartition
		default:
			return nil, dErrors.New(dErrors.CodeSelectionRequired, "no partition selected")
		}
	}

	if len(allowed) > 0 && !privileged && !slices.Contains(allowed, candidate) {
		r.logger.WarnContext(ctx, "partition access denied",
			"partition", candidate,
			"subject", subject(id),
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "partition not permitted")
	}

	handle, err := r.handles.HandleFor(ctx, r.database, candidate)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "partition not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "partition unavailable")
	}
	return &Selection{Database: r.database, Partition: candidate, Handle: handle}, nil
}

func (r *Router) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.IncrementResolve(outcome)
	}
}

func subject(id *authmw.Identity) string {
	if id == nil {
		return ""
	}
	return id.Subject
}
