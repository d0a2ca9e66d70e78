// Package handler serves the partition catalog to operators.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voterstore/internal/partition/catalog"
	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/httputil"
	"voterstore/pkg/requestcontext"
)

// Catalog lists the selectable partitions.
type Catalog interface {
	ListSelectable(ctx context.Context) []catalog.Summary
}

// Invalidator drops a cached catalog listing.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ListResponse is the catalog listing body.
type ListResponse struct {
	Partitions []catalog.Summary `json:"partitions"`
}

// Handler serves catalog routes. Routes expect the admin token middleware.
type Handler struct {
	catalog     Catalog
	invalidator Invalidator
	logger      *slog.Logger
}

// New creates a catalog Handler. invalidator may be nil when the listing is
// not cached, in which case refresh simply lists again.
func New(c Catalog, invalidator Invalidator, logger *slog.Logger) *Handler {
	return &Handler{catalog: c, invalidator: invalidator, logger: logger}
}

// Register registers the catalog routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/partitions", h.handleList)
	r.Post("/admin/partitions/refresh", h.handleRefresh)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list := h.catalog.ListSelectable(r.Context())
	if list == nil {
		list = []catalog.Summary{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Partitions: list})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx); err != nil {
			h.logger.ErrorContext(ctx, "failed to invalidate partition catalog",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "catalog cache unavailable"))
			return
		}
	}
	h.logger.InfoContext(ctx, "partition catalog refreshed",
		"request_id", requestcontext.RequestID(ctx),
	)
	h.handleList(w, r)
}
