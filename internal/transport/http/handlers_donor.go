package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hemotrack/internal/eligibility"
	"hemotrack/pkg/platform/httputil"
	"hemotrack/pkg/requestcontext"
)

// EligibilityService defines the donor-facing read operations.
type EligibilityService interface {
	Check(ctx context.Context, donorID string) (*eligibility.Result, error)
	Progress(ctx context.Context, donorID string) (*eligibility.Progress, error)
}

// DonorHandler serves the eligibility and progress tracker read models.
type DonorHandler struct {
	service EligibilityService
	logger  *slog.Logger
}

func NewDonorHandler(service EligibilityService, logger *slog.Logger) *DonorHandler {
	return &DonorHandler{service: service, logger: logger}
}

// Register mounts the donor endpoints on the router.
func (h *DonorHandler) Register(r chi.Router) {
	r.Get("/donors/{donorID}/eligibility", h.HandleEligibility)
	r.Get("/donors/{donorID}/progress", h.HandleProgress)
}

// HandleEligibility handles GET /donors/{donorID}/eligibility.
func (h *DonorHandler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donorID := chi.URLParam(r, "donorID")

	result, err := h.service.Check(ctx, donorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "eligibility check failed",
			"request_id", requestcontext.RequestID(ctx),
			"donor_id", donorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleProgress handles GET /donors/{donorID}/progress.
func (h *DonorHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donorID := chi.URLParam(r, "donorID")

	progress, err := h.service.Progress(ctx, donorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "progress lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"donor_id", donorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, progress)
}
