package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"voterstore/pkg/requestcontext"
)

// Client platforms used as a low-cardinality metrics label.
const (
	PlatformMobile  = "mobile"
	PlatformDesktop = "desktop"
	PlatformBot     = "bot"
	PlatformUnknown = "unknown"
)

// ClientMetadata extracts client IP, User-Agent and platform from the request
// and adds them to the context. Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, PlatformFor(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlatformFor classifies a User-Agent string.
func PlatformFor(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return PlatformUnknown
	}
	ua := useragent.New(userAgent)
	switch {
	case ua.Bot():
		return PlatformBot
	case ua.Mobile():
		return PlatformMobile
	case ua.OS() == "" && ua.Platform() == "":
		return PlatformUnknown
	default:
		return PlatformDesktop
	}
}

// ClientIPFromRequest extracts the client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For lists client, proxy1, proxy2...; the first is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
