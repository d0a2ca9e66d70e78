package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voterstore/internal/tenant/models"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/httputil"
	"voterstore/pkg/requestcontext"
)

// Service is the tenant lifecycle surface the handler drives.
type Service interface {
	AddPartition(ctx context.Context, tenantKey, master string) (*models.PartitionProvisioned, error)
	Get(ctx context.Context, tenantKey string) (*models.Tenant, error)
	Remove(ctx context.Context, tenantKey string) (*models.TenantRemoved, error)
}

// Handler serves the operator tenant routes. Routes expect the admin token
// middleware to have run.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a tenant Handler.
func New(s Service, logger *slog.Logger) *Handler {
	return &Handler{service: s, logger: logger}
}

// Register registers the tenant routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/tenants/{tenantKey}/partitions", h.handleAddPartition)
	r.Get("/admin/tenants/{tenantKey}", h.handleGetTenant)
	r.Delete("/admin/tenants/{tenantKey}", h.handleRemoveTenant)
}

func (h *Handler) handleAddPartition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantKey := chi.URLParam(r, "tenantKey")

	var req AddPartitionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid provision request", err)
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeError(ctx, w, "invalid provision request", err)
		return
	}

	res, err := h.service.AddPartition(ctx, tenantKey, req.Master)
	if err != nil {
		h.writeError(ctx, w, "failed to provision tenant partition", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.Get(ctx, chi.URLParam(r, "tenantKey"))
	if err != nil {
		h.writeError(ctx, w, "failed to get tenant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRemoveTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.Remove(ctx, chi.URLParam(r, "tenantKey"))
	if err != nil {
		h.writeError(ctx, w, "failed to remove tenant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
