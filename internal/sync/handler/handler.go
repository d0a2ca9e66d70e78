package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"voterstore/internal/partition/models"
	"voterstore/internal/partition/router"
	"voterstore/internal/partition/store"
	"voterstore/internal/sync/service"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/httputil"
	authmw "voterstore/pkg/platform/middleware/auth"
	"voterstore/pkg/requestcontext"
)

// HeaderServerTime carries the stream cursor on NDJSON exports.
const HeaderServerTime = "X-Server-Time"

// Router resolves the partition a request targets.
type Router interface {
	Resolve(ctx context.Context, id *authmw.Identity, requested string, requireExplicit bool) (*router.Selection, error)
}

// Service runs the sync protocol.
type Service interface {
	Export(ctx context.Context, q service.ExportQuery) (*service.ExportResult, error)
	BulkUpsert(ctx context.Context, partition store.Partition, changes []models.SyncChange) (*service.UpsertResult, error)
	Walk(ctx context.Context, partition store.Partition, since *time.Time, fn func(*models.Record) error) error
}

// Handler serves the sync endpoints. Routes expect the identity middleware
// to have run.
type Handler struct {
	router Router
	sync   Service
	logger *slog.Logger
}

// New creates a sync Handler.
func New(r Router, sync Service, logger *slog.Logger) *Handler {
	return &Handler{router: r, sync: sync, logger: logger}
}

// Register registers the sync routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/records", h.handleExport)
	r.Get("/records/stream", h.handleStream)
	r.Post("/records/bulk-upsert", h.handleBulkUpsert)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	since, err := sinceParam(q.Get("sinceUpdatedAt"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sel, err := h.router.Resolve(ctx, authmw.GetIdentity(ctx), q.Get("partitionId"), false)
	if err != nil {
		h.writeError(ctx, w, "failed to resolve partition", err)
		return
	}

	res, err := h.sync.Export(ctx, service.ExportQuery{
		Partition: sel.Handle,
		PageSize:  limit,
		Page:      page,
		Since:     since,
	})
	if err != nil {
		h.writeError(ctx, w, "failed to export records", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ExportResponse{
		Items:       res.Items,
		HasMore:     res.HasMore,
		ServerTime:  res.ServerTime,
		Page:        res.Page,
		Count:       res.Count,
		Total:       res.Total,
		PartitionID: sel.Partition,
	})
}

// handleStream writes every matching record as one JSON object per line.
// The cursor for the next delta pull is sent up front in X-Server-Time.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	since, err := sinceParam(q.Get("sinceUpdatedAt"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sel, err := h.router.Resolve(ctx, authmw.GetIdentity(ctx), q.Get("partitionId"), false)
	if err != nil {
		h.writeError(ctx, w, "failed to resolve partition", err)
		return
	}

	serverTime := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set(HeaderServerTime, serverTime.Format(time.RFC3339Nano))
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	written := 0
	err = h.sync.Walk(ctx, sel.Handle, since, func(rec *models.Record) error {
		if err := enc.Encode(rec); err != nil {
			return err
		}
		written++
		if written%100 == 0 {
			_ = rc.Flush()
		}
		return nil
	})
	if err != nil {
		// Headers are gone; all we can do is cut the stream short.
		h.logger.WarnContext(ctx, "record stream aborted",
			"partition", sel.Partition,
			"written", written,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	_ = rc.Flush()
}

func (h *Handler) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkUpsertRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid bulk upsert request",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	sel, err := h.router.Resolve(ctx, authmw.GetIdentity(ctx), req.PartitionID, true)
	if err != nil {
		h.writeError(ctx, w, "failed to resolve partition", err)
		return
	}

	res, err := h.sync.BulkUpsert(ctx, sel.Handle, req.ToChanges())
	if err != nil {
		h.writeError(ctx, w, "failed to apply changes", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, BulkUpsertResponse{
		SuccessIDs:  res.SuccessIDs,
		Failed:      res.Failed,
		DroppedIDs:  res.DroppedIDs,
		PartitionID: sel.Partition,
	})
}

// writeError logs server-side failures at error level and client mistakes
// at warn level, then writes the envelope.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be an integer")
	}
	return n, nil
}

func sinceParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
