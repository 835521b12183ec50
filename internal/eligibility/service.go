// Package eligibility computes when a donor may donate next and the short
// grace window during which the donor-facing tracker stays visible after a
// completed donation. The two windows are unrelated: the cooldown gates the
// next donation, the grace window only gates tracker visibility.
package eligibility

import (
	"context"
	"log/slog"
	"time"

	"hemotrack/internal/donation"
	dErrors "hemotrack/pkg/domain-errors"
	"hemotrack/pkg/requestcontext"
)

// Cooldown and grace constants. The cooldown uses calendar months, not a
// fixed day count.
const (
	cooldownMonths = 3
	graceDays      = 7
)

// Result reports a donor's eligibility state.
type Result struct {
	CanDonateNow bool `json:"can_donate_now"`

	// LatestCompletedDonation is the most recent donation that reached
	// Processed or ready-for-distribution; nil when the donor never has.
	LatestCompletedDonation *donation.Donation `json:"latest_completed_donation"`

	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	NextEligible *time.Time `json:"next_eligible,omitempty"`

	RemainingDays   int `json:"remaining_days"`
	RemainingMonths int `json:"remaining_months"`

	// GraceUntil is processed_at + 7 days, independent of the cooldown.
	GraceUntil *time.Time `json:"grace_until,omitempty"`
}

// Service derives eligibility from the donor's donation and status history.
type Service struct {
	repo   *donation.Repository
	logger *slog.Logger
}

func NewService(repo *donation.Repository, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "donation repository is required")
	}
	return &Service{repo: repo, logger: logger}, nil
}

// completed reports whether a status counts toward the cooldown.
func completed(s donation.Status) bool {
	return s == donation.StatusProcessed || s == donation.StatusReadyForDistribution
}

// pastProcessed reports whether a status may have passed through Processed on
// the way to the blood bank. Used is ambiguous: a cancelled donation whose
// unit was disposed also lands there, so the status history decides.
func pastProcessed(s donation.Status) bool {
	switch s {
	case donation.StatusStored, donation.StatusAllocated,
		donation.StatusBuffer, donation.StatusUsed:
		return true
	}
	return false
}

// Check computes the donor's eligibility at the request time.
//
// processed_at comes from the first status-history entry (most recent first)
// that records Processed or ready-for-distribution; when history is missing
// or lacks such an entry, the donation's creation time is used instead.
func (s *Service) Check(ctx context.Context, donorID string) (*Result, error) {
	if donorID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "donor_id is required")
	}

	donations, err := s.repo.DonationsByDonor(ctx, donorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load donations")
	}

	var latest *donation.Donation
	var fromHistory *time.Time
	for _, d := range donations {
		if completed(d.CurrentStatus) {
			latest = d
			break
		}
		if pastProcessed(d.CurrentStatus) {
			at, err := s.processedEntry(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			if at != nil {
				latest = d
				fromHistory = at
				break
			}
		}
	}
	if latest == nil {
		// Never completed a donation: nothing to compute a cooldown from.
		return &Result{CanDonateNow: false}, nil
	}

	processedAt := latest.CreatedAt
	if fromHistory != nil {
		processedAt = *fromHistory
	} else if at, err := s.processedEntry(ctx, latest.ID); err != nil {
		return nil, err
	} else if at != nil {
		processedAt = *at
	}

	now := requestcontext.Now(ctx)
	nextEligible := processedAt.AddDate(0, cooldownMonths, 0)
	graceUntil := processedAt.AddDate(0, 0, graceDays)

	result := &Result{
		LatestCompletedDonation: latest,
		ProcessedAt:             &processedAt,
		NextEligible:            &nextEligible,
		GraceUntil:              &graceUntil,
	}

	if !now.Before(nextEligible) {
		result.CanDonateNow = true
		return result, nil
	}

	result.RemainingDays = int(nextEligible.Sub(now).Hours() / 24)
	if result.RemainingDays < 0 {
		result.RemainingDays = 0
	}
	result.RemainingMonths = wholeMonthsBetween(now, nextEligible)
	return result, nil
}

// processedEntry returns the most recent status-history timestamp at which
// the donation recorded a completed status, or nil when it never did.
func (s *Service) processedEntry(ctx context.Context, donationID string) (*time.Time, error) {
	history, err := s.repo.StatusHistory(ctx, donationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load status history")
	}
	for _, entry := range history {
		if completed(entry.Status) {
			return &entry.ChangedAt, nil
		}
	}
	return nil, nil
}

// InGrace reports whether the donor-facing tracker should stay visible for
// the given result at time now.
func (r *Result) InGrace(now time.Time) bool {
	return r.GraceUntil != nil && now.Before(*r.GraceUntil)
}

// wholeMonthsBetween counts complete calendar months from a to b, matching
// the calendar arithmetic the cooldown itself uses.
func wholeMonthsBetween(a, b time.Time) int {
	if !a.Before(b) {
		return 0
	}
	months := 0
	for !a.AddDate(0, months+1, 0).After(b) {
		months++
	}
	return months
}
