package testutil

import (
	"net/http"
	"time"

	authmw "voterstore/pkg/platform/middleware/auth"
	"voterstore/pkg/requestcontext"
)

// WithIdentity adds a caller identity to the request context.
// This simulates what the bearer middleware does for authenticated requests.
func WithIdentity(req *http.Request, subject string, partitions ...string) *http.Request {
	ctx := authmw.WithIdentity(req.Context(), &authmw.Identity{Subject: subject, Partitions: partitions})
	return req.WithContext(ctx)
}

// WithPrivilegedIdentity adds an identity that bypasses partition checks.
func WithPrivilegedIdentity(req *http.Request, subject string) *http.Request {
	ctx := authmw.WithIdentity(req.Context(), &authmw.Identity{Subject: subject, Privileged: true})
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
