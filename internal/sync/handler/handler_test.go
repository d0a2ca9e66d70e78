package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"voterstore/internal/partition/handles"
	"voterstore/internal/partition/models"
	"voterstore/internal/partition/router"
	"voterstore/internal/partition/store"
	"voterstore/internal/sync/service"
	"voterstore/pkg/testutil"
)

const database = "voters"

var (
	seededAt  = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	writtenAt = time.Date(2025, 4, 1, 0, 0, 1, 0, time.UTC)
)

type HandlerSuite struct {
	suite.Suite
	mem    *store.InMemory
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	s.mem = store.NewInMemory()
	var recs []*models.Record
	for _, id := range []string{"v1", "v2", "v3"} {
		rec, err := models.NewRecord(id, map[string]any{"name": "voter " + id}, seededAt)
		s.Require().NoError(err)
		recs = append(recs, rec)
	}
	s.Require().NoError(s.mem.CreatePartition(ctx, database, "A", recs...))
	s.Require().NoError(s.mem.CreatePartition(ctx, database, "B"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(
		router.New(handles.New(s.mem), database, router.WithLogger(logger)),
		service.New(
			service.WithPageLimits(service.PageLimits{Min: 1, Max: 2, Default: 2}),
			service.WithLogger(logger),
			service.WithClock(func() time.Time { return writtenAt }),
		),
		logger,
	)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TestExport() {
	s.Run("single permitted partition", func() {
		req := testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, "/records?page=1"), "worker", "A")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[ExportResponse](s.T(), rr)
		s.Equal("A", resp.PartitionID)
		s.Equal(2, resp.Count)
		s.Equal(3, resp.Total)
		s.True(resp.HasMore)
		s.Equal("v1", resp.Items[0].ID)
	})

	s.Run("delta since unix millis", func() {
		req := testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet,
			"/records?partitionId=A&sinceUpdatedAt=1740819600000"), "worker", "A", "B")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[ExportResponse](s.T(), rr)
		s.Zero(resp.Total, "records stamped exactly at the cursor are not newer than it")
	})

	s.Run("response uses camelCase keys", func() {
		req := testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, "/records"), "worker", "A")
		rr := testutil.DoRequest(s.router, req)
		body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		for _, key := range []string{"items", "hasMore", "serverTime", "page", "count", "partitionId"} {
			s.Contains(*body, key)
		}
	})
}

func (s *HandlerSuite) TestExportErrors() {
	tests := []struct {
		name       string
		path       string
		partitions []string
		status     int
		code       string
	}{
		{"ambiguous", "/records", []string{"A", "B"}, http.StatusBadRequest, "partition_ambiguous"},
		{"nothing permitted or selected", "/records", nil, http.StatusBadRequest, "partition_required"},
		{"forbidden", "/records?partitionId=B", []string{"A"}, http.StatusForbidden, "forbidden"},
		{"missing partition", "/records?partitionId=Z", []string{"Z"}, http.StatusNotFound, "not_found"},
		{"bad page", "/records?page=two", []string{"A"}, http.StatusBadRequest, "bad_request"},
		{"bad since", "/records?sinceUpdatedAt=yesterday", []string{"A"}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, tt.path), "worker", tt.partitions...)
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatusAndError(s.T(), rr, tt.status, tt.code)
		})
	}
}

func (s *HandlerSuite) TestStream() {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	req := testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, "/records/stream"), "worker", "A")
	rr := testutil.DoRequest(s.router, testutil.WithRequestTime(req, now))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("application/x-ndjson", rr.Header().Get("Content-Type"))
	s.Equal(now.Format(time.RFC3339Nano), rr.Header().Get(HeaderServerTime))

	var ids []string
	for _, rec := range testutil.ReadNDJSON[models.Record](s.T(), rr) {
		ids = append(ids, rec.ID)
	}
	s.Equal([]string{"v1", "v2", "v3"}, ids, "stream pages past the export page size")
}

func (s *HandlerSuite) TestBulkUpsert() {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	s.Run("requires an explicit partition", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/bulk-upsert", map[string]any{
			"changes": []map[string]any{{"id": "v9", "op": "upsert", "payload": map[string]any{}}},
		})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, "worker", "A"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "partition_ambiguous")
	})

	s.Run("applies, drops and rejects per change", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/bulk-upsert", map[string]any{
			"partitionId": "A",
			"changes": []map[string]any{
				{"id": "v1", "op": "upsert", "payload": map[string]any{"mobile": "9000000001"}, "updatedAt": "2025-03-02T00:00:00Z"},
				{"id": "v2", "op": "upsert", "payload": map[string]any{"mobile": "9000000002"}, "updatedAt": seededAt.Add(-time.Hour).UnixMilli()},
				{"id": "v9", "op": "delete"},
			},
		})
		rr := testutil.DoRequest(s.router, testutil.WithRequestTime(testutil.WithIdentity(req, "worker", "A"), now))
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[BulkUpsertResponse](s.T(), rr)
		s.Equal("A", resp.PartitionID)
		s.Equal([]string{"v1", "v2"}, resp.SuccessIDs)
		s.Equal([]string{"v2"}, resp.DroppedIDs)
		s.Equal([]models.FailedChange{{ID: "v9", Reason: models.ReasonBadChange}}, resp.Failed)

		p, err := s.mem.OpenPartition(context.Background(), database, "A")
		s.Require().NoError(err)
		v1, err := p.Get(context.Background(), "v1")
		s.Require().NoError(err)
		s.Equal("9000000001", v1.Mobile)
		s.True(writtenAt.Equal(v1.UpdatedAt))
		v2, err := p.Get(context.Background(), "v2")
		s.Require().NoError(err)
		s.Empty(v2.Mobile)
	})

	s.Run("malformed change fails alone", func() {
		body := `{"partitionId":"A","changes":[
			{"id":"v1","op":"upsert","payload":{"ward":"7"},"updatedAt":"2025-03-03T00:00:00Z"},
			{"id":"v2","op":"upsert","payload":{"ward":"8"},"updatedAt":"yesterday"},
			{"id":42,"op":"upsert","payload":{"ward":"9"}},
			"not a change"
		]}`
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/records/bulk-upsert", body)
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, "worker", "A"))
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[BulkUpsertResponse](s.T(), rr)
		s.Equal([]string{"v1"}, resp.SuccessIDs)
		s.Equal([]models.FailedChange{
			{ID: "v2", Reason: models.ReasonBadChange},
			{ID: "42", Reason: models.ReasonBadChange},
			{ID: "", Reason: models.ReasonBadChange},
		}, resp.Failed)

		p, err := s.mem.OpenPartition(context.Background(), database, "A")
		s.Require().NoError(err)
		v1, err := p.Get(context.Background(), "v1")
		s.Require().NoError(err)
		s.Equal("7", v1.Ward)
		v2, err := p.Get(context.Background(), "v2")
		s.Require().NoError(err)
		s.Empty(v2.Ward)
	})

	s.Run("long numbers keep their digits", func() {
		body := `{"partitionId":"A","changes":[
			{"id":"v3","op":"upsert","payload":{"externalId":12345678901234567890,"household":98765432109876543210},"updatedAt":"2025-03-03T00:00:00Z"}
		]}`
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/records/bulk-upsert", body)
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, "worker", "A"))
		testutil.AssertStatusOK(s.T(), rr)

		p, err := s.mem.OpenPartition(context.Background(), database, "A")
		s.Require().NoError(err)
		v3, err := p.Get(context.Background(), "v3")
		s.Require().NoError(err)
		s.Equal("12345678901234567890", v3.ExternalID)
		s.Equal(json.Number("98765432109876543210"), v3.Raw["household"])
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/records/bulk-upsert", `{"changes": [`)
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, "worker", "A"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("privileged caller writes anywhere", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/bulk-upsert", map[string]any{
			"partitionId": "B",
			"changes":     []map[string]any{{"id": "v1", "op": "upsert", "payload": map[string]any{"ward": "2"}}},
		})
		rr := testutil.DoRequest(s.router, testutil.WithPrivilegedIdentity(req, "ops"))
		testutil.AssertStatusOK(s.T(), rr)
	})
}

func TestTimestampUnmarshal(t *testing.T) {
	suite.Run(t, new(timestampSuite))
}

type timestampSuite struct {
	suite.Suite
}

func (s *timestampSuite) TestForms() {
	var ts Timestamp
	s.Require().NoError(json.Unmarshal([]byte(`"2025-03-01T09:00:00.5+05:30"`), &ts))
	s.True(time.Date(2025, 3, 1, 3, 30, 0, 500_000_000, time.UTC).Equal(ts.Time))

	s.Require().NoError(json.Unmarshal([]byte(`1740819600000`), &ts))
	s.True(seededAt.Equal(ts.Time))

	s.Require().NoError(json.Unmarshal([]byte(`null`), &ts))
	s.True(ts.IsZero())

	s.Error(json.Unmarshal([]byte(`"last tuesday"`), &ts))
	s.Error(json.Unmarshal([]byte(`1.5`), &ts))
}
