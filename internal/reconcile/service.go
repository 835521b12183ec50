package reconcile

import (
	"context"
	"log/slog"
	"time"

	"hemotrack/internal/donation"
	"hemotrack/internal/notify"
	"hemotrack/internal/reconcile/metrics"
	"hemotrack/internal/recordstore"
	dErrors "hemotrack/pkg/domain-errors"
	"hemotrack/pkg/requestcontext"
)

// Outcome classifies the result of a reconciliation pass for callers.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeReset     Outcome = "reset"
	OutcomeNoChange  Outcome = "no_update_needed"
)

// Result is the structured outcome returned to trigger callers.
type Result struct {
	Success bool    `json:"success"`
	Outcome Outcome `json:"status"`
	Message string  `json:"message"`

	DonorID    string          `json:"donor_id,omitempty"`
	DonationID string          `json:"donation_id,omitempty"`
	OldStatus  donation.Status `json:"old_status,omitempty"`
	NewStatus  donation.Status `json:"new_status,omitempty"`

	// Changed reports whether a write happened. The sweep counts these.
	Changed bool `json:"-"`
}

// Emitter decouples the engine from the notification pipeline.
type Emitter interface {
	Emit(ctx context.Context, event notify.Event)
}

// Service is the status transition engine plus its event-trigger entry
// points. Every pass is a full re-derivation from a fresh read: load the
// active donation, assemble a snapshot of its child records, run the pure
// rule table, and write at most one donation update. A lost update under a
// concurrent writer is self-healing because the next trigger or sweep
// re-derives the same decision.
type Service struct {
	repo    *donation.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
	emitter Emitter
}

// Option configures optional service dependencies.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEmitter(e Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

func NewService(repo *donation.Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "donation repository is required")
	}
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateDonation registers a new donation attempt, enforcing the invariant
// that only one donation per donor may be active at a time.
func (s *Service) CreateDonation(ctx context.Context, donorID string) (*donation.Donation, error) {
	if donorID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "donor_id is required")
	}
	active, err := s.repo.ActiveDonation(ctx, donorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check active donation")
	}
	if active != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "donor already has an active donation")
	}
	now := requestcontext.Now(ctx)
	created, err := s.repo.CreateDonation(ctx, donorID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create donation")
	}
	if err := s.repo.AppendStatusHistory(ctx, created.ID, donation.StatusRegistered, now); err != nil {
		// The donation exists; history catches up on the next transition.
		s.log(ctx, slog.LevelWarn, "status history append failed",
			"donation_id", created.ID, "error", err)
	}
	return created, nil
}

// Reconcile runs one engine pass for the donor's active donation. A donor
// with no active donation is a legitimate no-op, not an error.
func (s *Service) Reconcile(ctx context.Context, donorID string) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveReconcileLatency(time.Since(start)) }()

	if donorID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "donor_id is required")
	}

	active, err := s.repo.ActiveDonation(ctx, donorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load active donation")
	}
	if active == nil {
		s.metrics.IncrementOutcome(string(OutcomeNoChange))
		return &Result{
			Success: false,
			Outcome: OutcomeNoChange,
			Message: "no active donation found for donor",
			DonorID: donorID,
		}, nil
	}

	snap, err := s.loadSnapshot(ctx, active)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to assemble snapshot")
	}

	decision := Decide(snap)
	if decision.Err != nil {
		s.metrics.IncrementOutcome("error")
		return nil, decision.Err
	}
	if decision.Change == nil {
		s.metrics.IncrementOutcome(string(OutcomeNoChange))
		return &Result{
			Success:    true,
			Outcome:    OutcomeNoChange,
			Message:    decision.NoChangeReason,
			DonorID:    donorID,
			DonationID: active.ID,
			OldStatus:  active.CurrentStatus,
			NewStatus:  active.CurrentStatus,
		}, nil
	}

	return s.apply(ctx, active, decision.Change)
}

// apply writes the transition and its side effects. The donation update is a
// single record write; history append and notification are best-effort
// followers, consistent with the no-cross-record-atomicity model.
func (s *Service) apply(ctx context.Context, active *donation.Donation, change *Change) (*Result, error) {
	now := requestcontext.Now(ctx)

	fields := recordstore.Record{
		"current_status": string(change.To),
		"notes":          change.Note,
	}
	if change.ScreeningCompleted {
		fields["screening_completed"] = true
	}
	if change.ExamCompleted {
		fields["physical_examination_completed"] = true
	}
	if change.CollectionCompleted {
		fields["blood_collection_completed"] = true
	}
	if change.UnitsCollected != nil {
		fields["units_collected"] = *change.UnitsCollected
	}
	if change.BloodType != "" {
		fields["blood_type"] = change.BloodType
	}

	updated, err := s.repo.UpdateDonation(ctx, active.ID, fields)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write status transition")
	}

	if err := s.repo.AppendStatusHistory(ctx, active.ID, change.To, now); err != nil {
		s.log(ctx, slog.LevelWarn, "status history append failed",
			"donation_id", active.ID, "error", err)
	}

	if s.emitter != nil {
		s.emitter.Emit(ctx, notify.Event{
			DonorID:    active.DonorID,
			DonationID: active.ID,
			OldStatus:  active.CurrentStatus,
			NewStatus:  change.To,
			Reason:     change.Reason,
			RecordedBy: recordedBy(ctx),
			ChangedAt:  now,
		})
	}

	outcome := OutcomeUpdated
	if change.To == donation.StatusCancelled {
		outcome = OutcomeCancelled
	}
	s.metrics.IncrementOutcome(string(outcome))
	s.metrics.IncrementTransition(string(active.CurrentStatus), string(change.To))

	s.log(ctx, slog.LevelInfo, "donation status reconciled",
		"donor_id", active.DonorID,
		"donation_id", active.ID,
		"old_status", active.CurrentStatus,
		"new_status", updated.CurrentStatus,
		"reason", change.Reason,
	)

	return &Result{
		Success:    true,
		Outcome:    outcome,
		Message:    change.Note,
		DonorID:    active.DonorID,
		DonationID: active.ID,
		OldStatus:  active.CurrentStatus,
		NewStatus:  updated.CurrentStatus,
		Changed:    true,
	}, nil
}

// AfterScreening reconciles after a screening form is saved.
func (s *Service) AfterScreening(ctx context.Context, donorID string) (*Result, error) {
	return s.Reconcile(ctx, donorID)
}

// AfterPhysicalExam reconciles after a physical examination is saved.
func (s *Service) AfterPhysicalExam(ctx context.Context, donorID string) (*Result, error) {
	return s.Reconcile(ctx, donorID)
}

// AfterCollection reconciles after a blood-collection record is saved.
func (s *Service) AfterCollection(ctx context.Context, donorID string) (*Result, error) {
	return s.Reconcile(ctx, donorID)
}

// AfterMedicalHistory reconciles after a medical-history save. Updates (as
// opposed to first-time creates) run the staleness guard first: a physical
// examination taken before the latest medical answers can no longer be
// trusted and the donation is sent back for re-examination.
func (s *Service) AfterMedicalHistory(ctx context.Context, donorID string, isUpdate bool) (*Result, error) {
	if !isUpdate {
		return s.Reconcile(ctx, donorID)
	}

	active, err := s.repo.ActiveDonation(ctx, donorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load active donation")
	}
	if active == nil || active.CurrentStatus != donation.StatusRegistered {
		return s.Reconcile(ctx, donorID)
	}

	medical, err := s.repo.LatestMedicalHistory(ctx, donorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load medical history")
	}
	if medical == nil {
		return s.Reconcile(ctx, donorID)
	}

	exam, err := s.repo.LatestExam(ctx, donorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load physical examination")
	}
	if exam != nil && !exam.UpdatedAt.Before(medical.UpdatedAt) {
		// The exam post-dates the medical answers; trust it and proceed.
		return s.Reconcile(ctx, donorID)
	}

	const note = "Medical history was changed after the last physical examination; the examination must be redone."
	_, err = s.repo.UpdateDonation(ctx, active.ID, recordstore.Record{
		"current_status":                 string(donation.StatusRegistered),
		"screening_completed":            false,
		"physical_examination_completed": false,
		"notes":                          note,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset donation")
	}

	s.metrics.IncrementOutcome(string(OutcomeReset))
	s.log(ctx, slog.LevelInfo, "stale physical examination invalidated",
		"donor_id", donorID,
		"donation_id", active.ID,
	)

	return &Result{
		Success:    true,
		Outcome:    OutcomeReset,
		Message:    note,
		DonorID:    donorID,
		DonationID: active.ID,
		OldStatus:  active.CurrentStatus,
		NewStatus:  donation.StatusRegistered,
		Changed:    true,
	}, nil
}

func recordedBy(ctx context.Context) string {
	if agent := requestcontext.ClientAgent(ctx); agent != "" {
		return agent
	}
	return requestcontext.ClientIP(ctx)
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, args...)
	}
}
