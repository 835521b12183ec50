package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hemotrack/internal/donation"
	"hemotrack/internal/reconcile"
	"hemotrack/pkg/platform/httputil"
	"hemotrack/pkg/requestcontext"
)

// ReconcileService defines the engine operations the handler needs.
type ReconcileService interface {
	CreateDonation(ctx context.Context, donorID string) (*donation.Donation, error)
	AfterScreening(ctx context.Context, donorID string) (*reconcile.Result, error)
	AfterPhysicalExam(ctx context.Context, donorID string) (*reconcile.Result, error)
	AfterCollection(ctx context.Context, donorID string) (*reconcile.Result, error)
	AfterMedicalHistory(ctx context.Context, donorID string, isUpdate bool) (*reconcile.Result, error)
}

// Sweeper defines the batch entry point consumed by the external scheduler.
type Sweeper interface {
	Run(ctx context.Context) (*reconcile.SweepResult, error)
}

// ReconcileHandler wires the trigger and sweep endpoints to the engine.
type ReconcileHandler struct {
	service ReconcileService
	sweeper Sweeper
	logger  *slog.Logger
}

func NewReconcileHandler(service ReconcileService, sweeper Sweeper, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{service: service, sweeper: sweeper, logger: logger}
}

// Register mounts the reconciliation endpoints on the router.
func (h *ReconcileHandler) Register(r chi.Router) {
	r.Post("/donations", h.HandleCreateDonation)
	r.Post("/reconcile/screening", h.trigger(h.service.AfterScreening))
	r.Post("/reconcile/physical-exam", h.trigger(h.service.AfterPhysicalExam))
	r.Post("/reconcile/collection", h.trigger(h.service.AfterCollection))
	r.Post("/reconcile/medical-history", h.HandleMedicalHistory)
	r.Post("/reconcile/sweep", h.HandleSweep)
}

type donorRequest struct {
	DonorID string `json:"donor_id"`
}

type medicalHistoryRequest struct {
	DonorID  string `json:"donor_id"`
	IsUpdate bool   `json:"is_update"`
}

// HandleCreateDonation handles POST /donations.
func (h *ReconcileHandler) HandleCreateDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[donorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.CreateDonation(ctx, req.DonorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "donation creation failed",
			"request_id", requestID,
			"donor_id", req.DonorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "donation created",
		"request_id", requestID,
		"donor_id", req.DonorID,
		"donation_id", created.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// trigger adapts a per-stage engine entry point into an HTTP handler.
func (h *ReconcileHandler) trigger(fn func(context.Context, string) (*reconcile.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)
		start := time.Now()

		req, ok := httputil.DecodeAndPrepare[donorRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}

		result, err := fn(ctx, req.DonorID)
		if err != nil {
			h.logger.ErrorContext(ctx, "reconciliation trigger failed",
				"request_id", requestID,
				"donor_id", req.DonorID,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}

		h.logger.InfoContext(ctx, "reconciliation trigger handled",
			"request_id", requestID,
			"donor_id", req.DonorID,
			"outcome", result.Outcome,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

// HandleMedicalHistory handles POST /reconcile/medical-history, which also
// carries the update-vs-create flag for the staleness guard.
func (h *ReconcileHandler) HandleMedicalHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[medicalHistoryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.AfterMedicalHistory(ctx, req.DonorID, req.IsUpdate)
	if err != nil {
		h.logger.ErrorContext(ctx, "medical history trigger failed",
			"request_id", requestID,
			"donor_id", req.DonorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleSweep handles POST /reconcile/sweep for the external scheduler.
func (h *ReconcileHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	result, err := h.sweeper.Run(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "sweep failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "sweep handled",
		"request_id", requestID,
		"checked", result.TotalChecked,
		"updated", result.TotalUpdated,
		"errors", result.TotalErrors,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}
