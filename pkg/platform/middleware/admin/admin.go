package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "voterstore/pkg/domain-errors"
	"voterstore/pkg/platform/httputil"
	"voterstore/pkg/requestcontext"
)

// HeaderAdminToken carries the shared operator token.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards operator endpoints. An empty expected token
// disables the endpoints entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
