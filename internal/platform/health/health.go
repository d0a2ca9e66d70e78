// Package health serves the liveness/readiness probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"voterstore/pkg/platform/httputil"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// Response is the probe body.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Handler runs every check with a shared timeout and answers 503 when any
// of them fails.
func Handler(checks map[string]Check, timeout time.Duration) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp := Response{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
