package eligibility

import (
	"context"

	"hemotrack/internal/donation"
	dErrors "hemotrack/pkg/domain-errors"
	"hemotrack/pkg/requestcontext"
)

// Progress is the donor-facing tracker aggregate: the donation being shown,
// its stage flags and audit note, and the eligibility state.
type Progress struct {
	Visible  bool               `json:"visible"`
	Donation *donation.Donation `json:"donation,omitempty"`

	Eligibility *Result `json:"eligibility"`
}

// Progress builds the tracker view. An active donation is always shown; a
// freshly completed one stays visible through the grace window; otherwise
// the tracker is hidden and only eligibility is reported.
func (s *Service) Progress(ctx context.Context, donorID string) (*Progress, error) {
	if donorID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "donor_id is required")
	}

	active, err := s.repo.ActiveDonation(ctx, donorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load active donation")
	}

	elig, err := s.Check(ctx, donorID)
	if err != nil {
		return nil, err
	}

	progress := &Progress{Eligibility: elig}
	switch {
	case active != nil:
		progress.Visible = true
		progress.Donation = active
	case elig.LatestCompletedDonation != nil && elig.InGrace(requestcontext.Now(ctx)):
		progress.Visible = true
		progress.Donation = elig.LatestCompletedDonation
	}
	return progress, nil
}
