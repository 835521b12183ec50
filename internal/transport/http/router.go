// Package httpapi is the thin HTTP layer. Handlers delegate to domain
// services without embedding business logic so transport concerns remain
// isolated. Authentication, sessions, and scheduling are owned by external
// collaborators; this surface only carries their calls.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hemotrack/pkg/platform/httputil"
	"hemotrack/pkg/platform/middleware/metadata"
	"hemotrack/pkg/platform/middleware/requestid"
	"hemotrack/pkg/platform/middleware/requesttime"
)

// NewRouter wires all public endpoints.
func NewRouter(reconcile *ReconcileHandler, donors *DonorHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	reconcile.Register(r)
	donors.Register(r)

	return r
}
