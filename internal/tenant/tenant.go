package tenant

import (
	"log/slog"

	"voterstore/internal/tenant/handler"
	"voterstore/internal/tenant/service"
)

// Service exposes tenant lifecycle orchestration.
type Service = service.Service

// Handler wires HTTP endpoints to the tenant service.
type Handler = handler.Handler

// NewService constructs the tenant service over a partition provisioner.
func NewService(p service.Provisioner, opts ...service.Option) *Service {
	return service.New(p, opts...)
}

// NewHandler constructs an HTTP handler for admin-facing tenant routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
