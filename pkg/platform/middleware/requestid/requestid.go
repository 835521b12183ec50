// Package requestid assigns or propagates a correlation ID per request.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"hemotrack/pkg/requestcontext"
)

// Header is the inbound/outbound correlation header.
const Header = "X-Request-ID"

// Middleware reuses an inbound X-Request-ID when present, otherwise mints a
// UUID, and exposes the ID on both the context and the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
