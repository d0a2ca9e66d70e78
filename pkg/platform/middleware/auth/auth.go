package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/httputil"
	"voterstore/pkg/requestcontext"
)

// Identity is who the caller is and which partitions they may use.
// Privileged callers bypass the permitted-set check.
type Identity struct {
	Subject    string
	Partitions []string
	Privileged bool
}

// TokenValidator turns a bearer token into an Identity.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Identity, error)
}

type contextKeyIdentity struct{}

// ContextKeyIdentity is exported for tests that build contexts by hand.
var ContextKeyIdentity = contextKeyIdentity{}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// GetIdentity returns the caller identity, or nil when unauthenticated.
func GetIdentity(ctx context.Context) *Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*Identity)
	return id
}

// RequireIdentity rejects requests without a valid bearer token.
func RequireIdentity(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			id, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}
