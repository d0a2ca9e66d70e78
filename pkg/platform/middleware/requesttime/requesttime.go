// Package requesttime captures one "now" per request. Every timestamp a
// request writes (record UpdatedAt, export serverTime) comes from it.
package requesttime

import (
	"net/http"
	"time"

	"voterstore/pkg/requestcontext"
)

// Middleware stamps requests with the wall clock.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps requests with now(), truncated to the microsecond
// precision the store keeps.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts := now().UTC().Truncate(time.Microsecond)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), ts)))
		})
	}
}
