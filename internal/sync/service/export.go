package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"voterstore/internal/partition/models"
	"voterstore/internal/partition/store"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/sentinel"
	"voterstore/pkg/requestcontext"
)

// ExportQuery selects one page of a partition. A nil Since exports
// everything; otherwise only records updated strictly after it.
type ExportQuery struct {
	Partition store.Partition
	PageSize  int
	Page      int
	Since     *time.Time
}

// ExportResult is one page of records ordered by id. ServerTime is captured
// before any read. Writes are stamped when they happen, so a record written
// after this export read its page carries a later UpdatedAt and comes back in
// the next delta pull keyed on ServerTime.
type ExportResult struct {
	Items      []*models.Record
	HasMore    bool
	Total      int
	ServerTime time.Time
	Page       int
	PageSize   int
	Count      int
}

// Export returns one page of the partition.
func (s *Service) Export(ctx context.Context, q ExportQuery) (_ *ExportResult, err error) {
	if q.Partition == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no partition selected")
	}
	serverTime := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	size := s.clampPageSize(q.PageSize)
	page := max(q.Page, 1)

	ctx, span := tracer.Start(ctx, "sync.export", trace.WithAttributes(
		attribute.String("partition.name", q.Partition.Name()),
		attribute.Int("export.page", page),
		attribute.Int("export.page_size", size),
		attribute.Bool("export.delta", q.Since != nil),
	))
	defer func() { endSpan(span, err) }()

	result := &ExportResult{
		Items:      []*models.Record{},
		ServerTime: serverTime,
		Page:       page,
		PageSize:   size,
	}
	start := time.Now()

	skip, addressable := offsetFor(page, size)
	var (
		total int
		items []*models.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := q.Partition.Count(gctx, q.Since)
		if err != nil {
			return translateStoreError(err, "failed to count records")
		}
		total = n
		return nil
	})
	if addressable {
		g.Go(func() error {
			recs, err := q.Partition.Page(gctx, store.PageQuery{Since: q.Since, Offset: skip, Limit: size})
			if err != nil {
				return translateStoreError(err, "failed to read records")
			}
			items = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if items != nil {
		result.Items = items
	}
	result.Total = total
	result.Count = len(result.Items)
	result.HasMore = addressable && skip+result.Count < total
	if s.metrics != nil {
		s.metrics.ObserveExport(requestcontext.ClientPlatform(ctx), result.Count, start)
	}
	return result, nil
}

// Walk feeds every record matching since to fn, one export page at a time,
// so a full partition is never held in memory. It stops at the first error
// from fn or from the store.
func (s *Service) Walk(ctx context.Context, partition store.Partition, since *time.Time, fn func(*models.Record) error) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "export stream cancelled")
		}
		res, err := s.Export(ctx, ExportQuery{
			Partition: partition,
			PageSize:  s.limits.Max,
			Page:      page,
			Since:     since,
		})
		if err != nil {
			return err
		}
		for _, rec := range res.Items {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if !res.HasMore {
			return nil
		}
	}
}

// offsetFor returns the row offset of page. Pages past what an offset can
// address report false and are empty.
func offsetFor(page, size int) (int, bool) {
	if page-1 > math.MaxInt32/size {
		return 0, false
	}
	return (page - 1) * size, true
}

func (s *Service) clampPageSize(size int) int {
	if size <= 0 {
		size = s.limits.Default
	}
	return min(max(size, s.limits.Min), s.limits.Max)
}

func translateStoreError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "partition not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
