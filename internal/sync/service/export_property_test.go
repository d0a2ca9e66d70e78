package service

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"voterstore/internal/partition/models"
	"voterstore/internal/partition/store"
)

// TestProperty_RepagingIsInvariant checks that walking pages 1..N of an
// unchanging partition yields every matching id exactly once, in order, and
// that only the final page reports no more data.
func TestProperty_RepagingIsInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	svc := New(WithPageLimits(PageLimits{Min: 1, Max: 40, Default: 10}))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("pages concatenate to the full ordered result", prop.ForAll(
		func(count, pageSize, sinceMinutes int, useSince bool) bool {
			ctx := context.Background()
			mem := store.NewInMemory()
			recs := make([]*models.Record, 0, count)
			for i := range count {
				rec, err := models.NewRecord(fmt.Sprintf("r%03d", (i*37)%1000), nil, base.Add(time.Duration(i%17)*time.Minute))
				if err != nil {
					return false
				}
				recs = append(recs, rec)
			}
			if err := mem.CreatePartition(ctx, "voters", "p", recs...); err != nil {
				return false
			}
			p, err := mem.OpenPartition(ctx, "voters", "p")
			if err != nil {
				return false
			}

			var since *time.Time
			if useSince {
				ts := base.Add(time.Duration(sinceMinutes) * time.Minute)
				since = &ts
			}
			want, err := p.Page(ctx, store.PageQuery{Since: since})
			if err != nil {
				return false
			}

			var got []string
			for page := 1; ; page++ {
				res, err := svc.Export(ctx, ExportQuery{Partition: p, PageSize: pageSize, Page: page, Since: since})
				if err != nil || res.Total != len(want) {
					return false
				}
				for _, r := range res.Items {
					got = append(got, r.ID)
				}
				if !res.HasMore {
					// A further page must be empty.
					next, err := svc.Export(ctx, ExportQuery{Partition: p, PageSize: pageSize, Page: page + 1, Since: since})
					if err != nil || len(next.Items) != 0 || next.HasMore {
						return false
					}
					break
				}
				if res.Count != res.PageSize {
					return false
				}
			}

			wantIDs := make([]string, len(want))
			for i, r := range want {
				wantIDs[i] = r.ID
			}
			return slices.Equal(wantIDs, got) && slices.IsSorted(got)
		},
		gen.IntRange(0, 120),
		gen.IntRange(1, 40),
		gen.IntRange(0, 17),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
