// Package metadata extracts client metadata from incoming requests and makes
// it available through requestcontext. Applied early in the chain so audit
// notes and status-change events can name the submitting client.
package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"hemotrack/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and a normalized user-agent label
// from the request and adds them to the context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithClientIP(ctx, ClientIPFromRequest(r))
		ctx = requestcontext.WithClientAgent(ctx, NormalizeUserAgent(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NormalizeUserAgent reduces a raw User-Agent header to "browser/os" so logs
// and audit notes stay readable. Non-browser agents fall back to the raw
// string, truncated.
func NormalizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	os := ua.OS()
	if name != "" && os != "" {
		return name + "/" + os
	}
	if len(raw) > 64 {
		return raw[:64]
	}
	return raw
}

// ClientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs; the first is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	// RemoteAddr is "ip:port" (or "[::1]:port" for IPv6).
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
