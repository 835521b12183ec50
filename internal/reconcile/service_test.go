package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"hemotrack/internal/donation"
	"hemotrack/internal/notify"
	"hemotrack/internal/recordstore"
	dErrors "hemotrack/pkg/domain-errors"
)

// captureEmitter records emitted events synchronously for assertions.
type captureEmitter struct {
	events []notify.Event
}

func (e *captureEmitter) Emit(_ context.Context, event notify.Event) {
	e.events = append(e.events, event)
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   recordstore.Client
	repo    *donation.Repository
	emitter *captureEmitter
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = donation.NewRepository(recordstore.NewInMemoryClient())
	s.store = s.repo.Store()
	s.emitter = &captureEmitter{}

	service, err := NewService(s.repo, WithEmitter(s.emitter))
	s.Require().NoError(err)
	s.service = service
}

func (s *ServiceSuite) seedDonorForm(donorID string, at time.Time) string {
	rec, err := s.store.Insert(s.ctx, recordstore.EntityDonorForms, recordstore.Record{
		"donor_id":   donorID,
		"created_at": at,
		"updated_at": at,
	})
	s.Require().NoError(err)
	return rec.String("id")
}

func (s *ServiceSuite) seedScreening(formID, disapproval, bloodType string, at time.Time) {
	_, err := s.store.Insert(s.ctx, recordstore.EntityScreeningForms, recordstore.Record{
		"donor_form_id":      formID,
		"disapproval_reason": disapproval,
		"blood_type":         bloodType,
		"created_at":         at,
		"updated_at":         at,
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) seedExam(donorID, remarks string, at time.Time) string {
	rec, err := s.store.Insert(s.ctx, recordstore.EntityPhysicalExams, recordstore.Record{
		"donor_id":   donorID,
		"remarks":    remarks,
		"created_at": at,
		"updated_at": at,
	})
	s.Require().NoError(err)
	return rec.String("id")
}

func (s *ServiceSuite) seedCollection(examID string, amount float64, at time.Time) {
	_, err := s.store.Insert(s.ctx, recordstore.EntityBloodCollections, recordstore.Record{
		"exam_id":      examID,
		"amount_taken": amount,
		"created_at":   at,
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) seedMedical(donorID string, at time.Time) {
	_, err := s.store.Insert(s.ctx, recordstore.EntityMedicalHistories, recordstore.Record{
		"donor_id":   donorID,
		"created_at": at,
		"updated_at": at,
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) seedUnit(donorID, status string, units float64, at time.Time) {
	_, err := s.store.Insert(s.ctx, recordstore.EntityInventoryUnits, recordstore.Record{
		"donor_id":   donorID,
		"status":     status,
		"units":      units,
		"created_at": at,
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestCreateDonation() {
	created, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(donation.StatusRegistered, created.CurrentStatus)
	s.Equal("donor-1", created.DonorID)

	history, err := s.repo.StatusHistory(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(donation.StatusRegistered, history[0].Status)
}

func (s *ServiceSuite) TestCreateDonationRejectsSecondActive() {
	_, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	_, err = s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestReconcileNoActiveDonation() {
	res, err := s.service.Reconcile(s.ctx, "donor-unknown")
	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal(OutcomeNoChange, res.Outcome)
	s.Equal("no active donation found for donor", res.Message)
	s.Empty(s.emitter.events)
}

func (s *ServiceSuite) TestScreeningApprovalAdvances() {
	created, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	now := time.Now()
	formID := s.seedDonorForm("donor-1", now)
	s.seedScreening(formID, "", "O+", now)

	res, err := s.service.AfterScreening(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal(OutcomeUpdated, res.Outcome)
	s.Equal(donation.StatusRegistered, res.OldStatus)
	s.Equal(donation.StatusSampleCollected, res.NewStatus)

	active, err := s.repo.ActiveDonation(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(donation.StatusSampleCollected, active.CurrentStatus)
	s.Equal("O+", active.BloodType)
	s.True(active.ScreeningCompleted)

	s.Require().Len(s.emitter.events, 1)
	event := s.emitter.events[0]
	s.Equal(created.ID, event.DonationID)
	s.Equal(donation.StatusRegistered, event.OldStatus)
	s.Equal(donation.StatusSampleCollected, event.NewStatus)
}

func (s *ServiceSuite) TestScreeningDisapprovalCancels() {
	_, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	now := time.Now()
	formID := s.seedDonorForm("donor-1", now)
	s.seedScreening(formID, "Low hemoglobin", "", now)

	res, err := s.service.AfterScreening(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(OutcomeCancelled, res.Outcome)
	s.Equal(donation.StatusCancelled, res.NewStatus)
	s.Equal("Low hemoglobin", res.Message)

	active, err := s.repo.ActiveDonation(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Nil(active)
}

func (s *ServiceSuite) TestFullPipelineToProcessed() {
	created, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	now := time.Now()
	formID := s.seedDonorForm("donor-1", now)
	s.seedScreening(formID, "", "A+", now)

	_, err = s.service.AfterScreening(s.ctx, "donor-1")
	s.Require().NoError(err)

	examID := s.seedExam("donor-1", "fit to donate", now.Add(time.Minute))
	res, err := s.service.AfterPhysicalExam(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(donation.StatusTesting, res.NewStatus)

	s.seedCollection(examID, 1.5, now.Add(2*time.Minute))
	res, err = s.service.AfterCollection(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(donation.StatusProcessed, res.NewStatus)

	active, err := s.repo.ActiveDonation(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(donation.StatusProcessed, active.CurrentStatus)
	s.Equal(1.5, active.UnitsCollected)
	s.True(active.BloodCollectionCompleted)

	history, err := s.repo.StatusHistory(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Len(history, 4) // registered, sample_collected, testing, processed
}

func (s *ServiceSuite) TestReconcileIsIdempotent() {
	_, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	now := time.Now()
	formID := s.seedDonorForm("donor-1", now)
	s.seedScreening(formID, "", "B-", now)

	first, err := s.service.Reconcile(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.True(first.Changed)

	second, err := s.service.Reconcile(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.False(second.Changed)
	s.Equal(OutcomeNoChange, second.Outcome)
	s.Equal(donation.StatusSampleCollected, second.OldStatus)
	s.Equal(donation.StatusSampleCollected, second.NewStatus)
	s.Len(s.emitter.events, 1)
}

func (s *ServiceSuite) TestInventoryDispositionOverrides() {
	created, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	now := time.Now()
	_, err = s.repo.UpdateDonation(s.ctx, created.ID, recordstore.Record{
		"current_status": string(donation.StatusStored),
	})
	s.Require().NoError(err)

	_, err = s.store.Insert(s.ctx, recordstore.EntityInventoryUnits, recordstore.Record{
		"donor_id":    "donor-1",
		"status":      "Stored",
		"disposed_at": now,
		"created_at":  now,
	})
	s.Require().NoError(err)

	res, err := s.service.Reconcile(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(donation.StatusUsed, res.NewStatus)
	s.Contains(res.Message, "expired")
}

func (s *ServiceSuite) TestValidatedUnitRecordsVolume() {
	created, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	_, err = s.repo.UpdateDonation(s.ctx, created.ID, recordstore.Record{
		"current_status": string(donation.StatusTesting),
	})
	s.Require().NoError(err)

	s.seedUnit("donor-1", "Valid", 1.5, time.Now())

	res, err := s.service.Reconcile(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(donation.StatusProcessed, res.NewStatus)

	active, err := s.repo.ActiveDonation(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(1.5, active.UnitsCollected)
}

func (s *ServiceSuite) TestMedicalHistoryCreateReconciles() {
	_, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.seedMedical("donor-1", time.Now())

	res, err := s.service.AfterMedicalHistory(s.ctx, "donor-1", false)
	s.Require().NoError(err)
	s.Equal(OutcomeNoChange, res.Outcome)
}

func (s *ServiceSuite) TestMedicalHistoryUpdateResetsStaleExam() {
	created, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	examAt := time.Now().Add(-time.Hour)
	s.seedExam("donor-1", "fit to donate", examAt)
	s.seedMedical("donor-1", time.Now())

	_, err = s.repo.UpdateDonation(s.ctx, created.ID, recordstore.Record{
		"screening_completed":            true,
		"physical_examination_completed": true,
	})
	s.Require().NoError(err)

	res, err := s.service.AfterMedicalHistory(s.ctx, "donor-1", true)
	s.Require().NoError(err)
	s.Equal(OutcomeReset, res.Outcome)
	s.Equal(donation.StatusRegistered, res.NewStatus)

	active, err := s.repo.ActiveDonation(s.ctx, "donor-1")
	s.Require().NoError(err)
	s.False(active.ScreeningCompleted)
	s.False(active.PhysicalExaminationCompleted)
	s.Contains(active.Notes, "must be redone")
}

func (s *ServiceSuite) TestMedicalHistoryUpdateWithFresherExamProceeds() {
	_, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	s.seedMedical("donor-1", time.Now().Add(-time.Hour))
	s.seedExam("donor-1", "fit to donate", time.Now())

	res, err := s.service.AfterMedicalHistory(s.ctx, "donor-1", true)
	s.Require().NoError(err)
	s.Equal(OutcomeUpdated, res.Outcome)
	s.Equal(donation.StatusTesting, res.NewStatus)
}

func (s *ServiceSuite) TestCollectionWithoutExamSurfacesError() {
	created, err := s.service.CreateDonation(s.ctx, "donor-1")
	s.Require().NoError(err)

	_, err = s.repo.UpdateDonation(s.ctx, created.ID, recordstore.Record{
		"current_status": string(donation.StatusTesting),
	})
	s.Require().NoError(err)

	_, err = s.service.Reconcile(s.ctx, "donor-1")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}
