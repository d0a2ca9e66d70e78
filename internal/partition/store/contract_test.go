package store

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	"voterstore/internal/partition/models"
	"voterstore/pkg/platform/sentinel"
)

// storeContractSuite holds behaviour every backend must share. Backend suites
// embed it and fill in store, seed and database in SetupTest.
type storeContractSuite struct {
	suite.Suite
	ctx      context.Context
	store    Store
	database string
	seed     func(name string, recs ...*models.Record)
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id string, at time.Time, payload map[string]any) *models.Record {
	rec, err := models.NewRecord(id, payload, at)
	if err != nil {
		panic(err)
	}
	return rec
}

func (s *storeContractSuite) openPartition(name string) Partition {
	p, err := s.store.OpenPartition(s.ctx, s.database, name)
	s.Require().NoError(err)
	return p
}

func (s *storeContractSuite) TestListAndExists() {
	s.seed("ward_b")
	s.seed("ward_a", record("v1", baseTime, nil))

	names, err := s.store.ListPartitions(s.ctx, s.database)
	s.Require().NoError(err)
	s.Equal([]string{"ward_a", "ward_b"}, names)

	exists, err := s.store.PartitionExists(s.ctx, s.database, "ward_a")
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.store.PartitionExists(s.ctx, s.database, "ward_c")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *storeContractSuite) TestOpenMissingPartition() {
	_, err := s.store.OpenPartition(s.ctx, s.database, "nowhere")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestRecordLifecycle() {
	s.seed("ward_a")
	p := s.openPartition("ward_a")
	s.Equal("ward_a", p.Name())
	s.Equal(s.database, p.Database())

	s.Run("get missing record", func() {
		_, err := p.Get(s.ctx, "v1")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("insert then get preserves raw keys", func() {
		rec := record("v1", baseTime, map[string]any{
			"name": "Asha",
			"raw":  map[string]any{"मतदाता क्रमांक": "17"},
		})
		s.Require().NoError(p.Insert(s.ctx, rec))

		got, err := p.Get(s.ctx, "v1")
		s.Require().NoError(err)
		s.Equal("Asha", got.Name)
		s.Equal("17", got.Raw["मतदाता क्रमांक"])
		s.True(baseTime.Equal(got.UpdatedAt))
	})

	s.Run("duplicate insert", func() {
		err := p.Insert(s.ctx, record("v1", baseTime, nil))
		s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)
	})

	s.Run("replace existing", func() {
		got, err := p.Get(s.ctx, "v1")
		s.Require().NoError(err)
		s.Require().NoError(got.Merge(map[string]any{"ward": "7"}, baseTime.Add(time.Hour)))
		s.Require().NoError(p.Replace(s.ctx, got))

		again, err := p.Get(s.ctx, "v1")
		s.Require().NoError(err)
		s.Equal("Asha", again.Name)
		s.Equal("7", again.Ward)
		s.True(baseTime.Add(time.Hour).Equal(again.UpdatedAt))
	})

	s.Run("replace missing", func() {
		err := p.Replace(s.ctx, record("ghost", baseTime, nil))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContractSuite) TestPagingOrderAndSince() {
	var recs []*models.Record
	for i := range 5 {
		recs = append(recs, record(fmt.Sprintf("v%d", 5-i), baseTime.Add(time.Duration(i)*time.Minute), nil))
	}
	recs = append(recs, record("V0", baseTime, nil))
	s.seed("ward_a", recs...)
	p := s.openPartition("ward_a")

	s.Run("orders by id bytes", func() {
		page, err := p.Page(s.ctx, PageQuery{Limit: 10})
		s.Require().NoError(err)
		s.Equal([]string{"V0", "v1", "v2", "v3", "v4", "v5"}, ids(page))
	})

	s.Run("offset and limit", func() {
		page, err := p.Page(s.ctx, PageQuery{Offset: 2, Limit: 2})
		s.Require().NoError(err)
		s.Equal([]string{"v2", "v3"}, ids(page))
	})

	s.Run("offset past end", func() {
		page, err := p.Page(s.ctx, PageQuery{Offset: 20, Limit: 2})
		s.Require().NoError(err)
		s.Empty(page)
	})

	s.Run("since is strictly after", func() {
		since := baseTime.Add(2 * time.Minute)
		page, err := p.Page(s.ctx, PageQuery{Since: &since, Limit: 10})
		s.Require().NoError(err)
		s.Equal([]string{"v1", "v2"}, ids(page))

		n, err := p.Count(s.ctx, &since)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("count all", func() {
		n, err := p.Count(s.ctx, nil)
		s.Require().NoError(err)
		s.Equal(6, n)
	})
}

func (s *storeContractSuite) TestCloneCopiesAndIsolates() {
	s.seed("master", record("v1", baseTime, map[string]any{"name": "Asha"}), record("v2", baseTime, nil))

	s.Require().NoError(s.store.ClonePartition(s.ctx, s.database, "master", "tenant_acme_master"))

	clone := s.openPartition("tenant_acme_master")
	n, err := clone.Count(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(2, n)

	got, err := clone.Get(s.ctx, "v1")
	s.Require().NoError(err)
	s.Require().NoError(got.Merge(map[string]any{"name": "Changed"}, baseTime.Add(time.Hour)))
	s.Require().NoError(clone.Replace(s.ctx, got))

	master := s.openPartition("master")
	original, err := master.Get(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal("Asha", original.Name, "clone writes must not leak into the master")

	s.Run("target already present", func() {
		err := s.store.ClonePartition(s.ctx, s.database, "master", "tenant_acme_master")
		s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)
	})

	s.Run("source missing", func() {
		err := s.store.ClonePartition(s.ctx, s.database, "absent", "tenant_acme_absent")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContractSuite) TestDrop() {
	s.seed("tenant_acme_master", record("v1", baseTime, nil))
	p := s.openPartition("tenant_acme_master")

	dropped, err := s.store.DropPartition(s.ctx, s.database, "tenant_acme_master")
	s.Require().NoError(err)
	s.True(dropped)

	_, err = p.Get(s.ctx, "v1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound, "stale handles stop answering after drop")

	dropped, err = s.store.DropPartition(s.ctx, s.database, "tenant_acme_master")
	s.Require().NoError(err)
	s.False(dropped)
}

func ids(recs []*models.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
