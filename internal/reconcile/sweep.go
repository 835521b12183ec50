package reconcile

import (
	"context"
	"log/slog"
	"time"

	"hemotrack/internal/donation"
	dErrors "hemotrack/pkg/domain-errors"
)

// SweepDetail records the outcome for one donation inspected by the sweep:
// either a status change or the error that prevented one.
type SweepDetail struct {
	DonorID    string          `json:"donor_id"`
	DonationID string          `json:"donation_id"`
	OldStatus  donation.Status `json:"old_status,omitempty"`
	NewStatus  donation.Status `json:"new_status,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// SweepResult aggregates one batch sweep run.
type SweepResult struct {
	TotalChecked int           `json:"total_checked"`
	TotalUpdated int           `json:"total_updated"`
	TotalErrors  int           `json:"total_errors"`
	TotalSkipped int           `json:"total_skipped"`
	Details      []SweepDetail `json:"details"`
}

// Sweeper is the drift-correction pass: it re-runs the engine over recent
// non-terminal donations so state converges even when an event trigger was
// missed or failed. Safe to run repeatedly and concurrently with interactive
// triggers because each engine pass is idempotent.
type Sweeper struct {
	service *Service
	locker  Locker
	logger  *slog.Logger
	limit   int
}

// NewSweeper builds a sweeper over the given engine. locker may be nil.
func NewSweeper(service *Service, locker Locker, logger *slog.Logger, limit int) *Sweeper {
	if limit <= 0 {
		limit = 100
	}
	return &Sweeper{service: service, locker: locker, logger: logger, limit: limit}
}

// Run executes one sweep. Donations already terminal are skipped without
// invoking the engine; everything else gets a full reconciliation pass.
func (sw *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	if sw.locker != nil {
		acquired, err := sw.locker.Acquire(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to acquire sweep lock")
		}
		if !acquired {
			return nil, dErrors.New(dErrors.CodeConflict, "a sweep is already in progress")
		}
		defer func() {
			if err := sw.locker.Release(ctx); err != nil && sw.logger != nil {
				sw.logger.WarnContext(ctx, "sweep lock release failed", "error", err)
			}
		}()
	}

	start := time.Now()
	defer func() { sw.service.metrics.ObserveSweep(time.Since(start)) }()

	donations, err := sw.service.repo.RecentDonations(ctx, sw.limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list donations for sweep")
	}

	result := &SweepResult{Details: []SweepDetail{}}
	for _, d := range donations {
		if d.CurrentStatus.Terminal() {
			result.TotalSkipped++
			continue
		}

		result.TotalChecked++
		res, err := sw.service.Reconcile(ctx, d.DonorID)
		if err != nil {
			result.TotalErrors++
			result.Details = append(result.Details, SweepDetail{
				DonorID:    d.DonorID,
				DonationID: d.ID,
				Error:      err.Error(),
			})
			if sw.logger != nil {
				sw.logger.ErrorContext(ctx, "sweep reconciliation failed",
					"donor_id", d.DonorID,
					"donation_id", d.ID,
					"error", err,
				)
			}
			continue
		}
		if res.Changed {
			result.TotalUpdated++
			result.Details = append(result.Details, SweepDetail{
				DonorID:    d.DonorID,
				DonationID: d.ID,
				OldStatus:  res.OldStatus,
				NewStatus:  res.NewStatus,
			})
		}
	}

	if sw.logger != nil {
		sw.logger.InfoContext(ctx, "sweep completed",
			"checked", result.TotalChecked,
			"updated", result.TotalUpdated,
			"errors", result.TotalErrors,
			"skipped", result.TotalSkipped,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return result, nil
}
