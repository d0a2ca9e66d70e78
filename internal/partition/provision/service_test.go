package provision_test

//go:generate mockgen -source=events.go -destination=mocks/mocks.go -package=mocks EventPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"voterstore/internal/partition/handles"
	"voterstore/internal/partition/metrics"
	"voterstore/internal/partition/models"
	"voterstore/internal/partition/provision"
	"voterstore/internal/partition/provision/mocks"
	"voterstore/internal/partition/store"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/sentinel"
)

const database = "voters"

// racingStore reports that a concurrent creator won every clone.
type racingStore struct {
	*store.InMemory
}

func (r racingStore) ClonePartition(ctx context.Context, db, source, target string) error {
	if err := r.InMemory.ClonePartition(ctx, db, source, target); err != nil {
		return err
	}
	return sentinel.ErrAlreadyExists
}

type failingStore struct {
	*store.InMemory
	err error
}

func (f failingStore) PartitionExists(context.Context, string, string) (bool, error) {
	return false, f.err
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	publisher *mocks.MockEventPublisher
	mem       *store.InMemory
	cache     *handles.Cache
	service   *provision.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	s.mem = store.NewInMemory()
	s.cache = handles.New(s.mem)
	s.service = s.newService(s.mem)

	now := time.Now()
	var recs []*models.Record
	for _, id := range []string{"v1", "v2", "v3"} {
		rec, err := models.NewRecord(id, map[string]any{"name": "voter " + id}, now)
		s.Require().NoError(err)
		recs = append(recs, rec)
	}
	s.Require().NoError(s.mem.CreatePartition(s.ctx, database, "ward_a", recs...))
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(st provision.PartitionStore) *provision.Service {
	return provision.New(st, database,
		provision.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		provision.WithMetrics(metrics.New(prometheus.NewRegistry())),
		provision.WithHandleEvictor(s.cache),
		provision.WithEventPublisher(s.publisher),
	)
}

func (s *ServiceSuite) count(name string) int {
	p, err := s.mem.OpenPartition(s.ctx, database, name)
	s.Require().NoError(err)
	n, err := p.Count(s.ctx, nil)
	s.Require().NoError(err)
	return n
}

func (s *ServiceSuite) TestClone() {
	s.Run("copies every master record", func() {
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e provision.Event) error {
				s.Equal(provision.EventCloned, e.Type)
				s.Equal("tenant_acme_ward_a", e.Partition)
				s.Equal("ward_a", e.Source)
				s.Equal("acme", e.Tenant)
				s.Equal(database, e.Database)
				s.NotEmpty(e.ID)
				return nil
			})

		s.Require().NoError(s.service.Clone(s.ctx, "ward_a", "tenant_acme_ward_a"))
		s.Equal(3, s.count("tenant_acme_ward_a"))
	})

	s.Run("existing target is a no-op", func() {
		// No publish expected: nothing changed.
		s.Require().NoError(s.service.Clone(s.ctx, "ward_a", "tenant_acme_ward_a"))
		s.Equal(3, s.count("tenant_acme_ward_a"))
	})

	s.Run("missing master", func() {
		err := s.service.Clone(s.ctx, "ward_z", "tenant_acme_ward_z")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSource))

		exists, err := s.mem.PartitionExists(s.ctx, database, "tenant_acme_ward_z")
		s.Require().NoError(err)
		s.False(exists)
	})

	s.Run("invalid names", func() {
		err := s.service.Clone(s.ctx, "ward_a", "pg_evil")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestCloneLosingRaceSucceeds() {
	svc := s.newService(racingStore{InMemory: s.mem})
	s.Require().NoError(svc.Clone(s.ctx, "ward_a", "tenant_acme_ward_a"))
}

func (s *ServiceSuite) TestCloneStoreFailure() {
	svc := s.newService(failingStore{InMemory: s.mem, err: errors.New("connection reset")})
	err := svc.Clone(s.ctx, "ward_a", "tenant_acme_ward_a")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ServiceSuite) TestPublishFailureDoesNotFailClone() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	s.Require().NoError(s.service.Clone(s.ctx, "ward_a", "tenant_acme_ward_a"))
	s.Equal(3, s.count("tenant_acme_ward_a"))
}

func (s *ServiceSuite) TestDrop() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil) // clone
	s.Require().NoError(s.service.Clone(s.ctx, "ward_a", "tenant_acme_ward_a"))
	_, err := s.cache.HandleFor(s.ctx, database, "tenant_acme_ward_a")
	s.Require().NoError(err)
	s.Equal(1, s.cache.Size())

	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e provision.Event) error {
			s.Equal(provision.EventDropped, e.Type)
			s.Equal("acme", e.Tenant)
			return nil
		})
	s.Require().NoError(s.service.Drop(s.ctx, "tenant_acme_ward_a"))

	exists, err := s.mem.PartitionExists(s.ctx, database, "tenant_acme_ward_a")
	s.Require().NoError(err)
	s.False(exists)
	s.Equal(0, s.cache.Size(), "dropped partition handle must be evicted")

	s.Run("dropping a missing partition succeeds", func() {
		s.Require().NoError(s.service.Drop(s.ctx, "tenant_acme_ward_a"))
	})
}

func (s *ServiceSuite) TestProvisionAndDropTenant() {
	s.Require().NoError(s.mem.CreatePartition(s.ctx, database, "ward_b"))
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(5)

	name, err := s.service.ProvisionTenant(s.ctx, "acme", "ward_a")
	s.Require().NoError(err)
	s.Equal("tenant_acme_ward_a", name)
	_, err = s.service.ProvisionTenant(s.ctx, "acme", "ward_b")
	s.Require().NoError(err)
	_, err = s.service.ProvisionTenant(s.ctx, "globex", "ward_a")
	s.Require().NoError(err)

	dropped, err := s.service.DropTenant(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal([]string{"tenant_acme_ward_a", "tenant_acme_ward_b"}, dropped)

	names, err := s.mem.ListPartitions(s.ctx, database)
	s.Require().NoError(err)
	s.Equal([]string{"tenant_globex_ward_a", "ward_a", "ward_b"}, names)

	s.Run("second teardown drops nothing", func() {
		dropped, err := s.service.DropTenant(s.ctx, "acme")
		s.Require().NoError(err)
		s.Empty(dropped)
	})

	s.Run("invalid tenant key", func() {
		_, err := s.service.DropTenant(s.ctx, "ac_me")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
