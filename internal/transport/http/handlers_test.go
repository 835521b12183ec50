package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemotrack/internal/donation"
	"hemotrack/internal/eligibility"
	"hemotrack/internal/reconcile"
	dErrors "hemotrack/pkg/domain-errors"
)

type fakeEngine struct {
	createErr  error
	result     *reconcile.Result
	resultErr  error
	lastDonor  string
	lastUpdate bool
}

func (f *fakeEngine) CreateDonation(_ context.Context, donorID string) (*donation.Donation, error) {
	f.lastDonor = donorID
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &donation.Donation{ID: "don-1", DonorID: donorID, CurrentStatus: donation.StatusRegistered}, nil
}

func (f *fakeEngine) reconcile(donorID string) (*reconcile.Result, error) {
	f.lastDonor = donorID
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return f.result, nil
}

func (f *fakeEngine) AfterScreening(_ context.Context, donorID string) (*reconcile.Result, error) {
	return f.reconcile(donorID)
}

func (f *fakeEngine) AfterPhysicalExam(_ context.Context, donorID string) (*reconcile.Result, error) {
	return f.reconcile(donorID)
}

func (f *fakeEngine) AfterCollection(_ context.Context, donorID string) (*reconcile.Result, error) {
	return f.reconcile(donorID)
}

func (f *fakeEngine) AfterMedicalHistory(_ context.Context, donorID string, isUpdate bool) (*reconcile.Result, error) {
	f.lastUpdate = isUpdate
	return f.reconcile(donorID)
}

type fakeSweeper struct {
	result *reconcile.SweepResult
	err    error
}

func (f *fakeSweeper) Run(context.Context) (*reconcile.SweepResult, error) {
	return f.result, f.err
}

type fakeEligibility struct {
	result   *eligibility.Result
	progress *eligibility.Progress
	err      error
}

func (f *fakeEligibility) Check(_ context.Context, _ string) (*eligibility.Result, error) {
	return f.result, f.err
}

func (f *fakeEligibility) Progress(_ context.Context, _ string) (*eligibility.Progress, error) {
	return f.progress, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(engine *fakeEngine, sweeper *fakeSweeper) chi.Router {
	r := chi.NewRouter()
	NewReconcileHandler(engine, sweeper, testLogger()).Register(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateDonation(t *testing.T) {
	engine := &fakeEngine{}
	router := newTestRouter(engine, &fakeSweeper{})

	rec := postJSON(t, router, "/donations", `{"donor_id":"donor-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "donor-1", engine.lastDonor)
}

func TestHandleCreateDonationConflict(t *testing.T) {
	engine := &fakeEngine{createErr: dErrors.New(dErrors.CodeConflict, "donor already has an active donation")}
	router := newTestRouter(engine, &fakeSweeper{})

	rec := postJSON(t, router, "/donations", `{"donor_id":"donor-1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body["error"])
	assert.Equal(t, "donor already has an active donation", body["error_description"])
}

func TestTriggerEndpoints(t *testing.T) {
	result := &reconcile.Result{
		Success:   true,
		Outcome:   reconcile.OutcomeUpdated,
		DonorID:   "donor-1",
		OldStatus: donation.StatusRegistered,
		NewStatus: donation.StatusSampleCollected,
	}

	for _, path := range []string{
		"/reconcile/screening",
		"/reconcile/physical-exam",
		"/reconcile/collection",
	} {
		t.Run(path, func(t *testing.T) {
			engine := &fakeEngine{result: result}
			router := newTestRouter(engine, &fakeSweeper{})

			rec := postJSON(t, router, path, `{"donor_id":"donor-1"}`)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "donor-1", engine.lastDonor)

			var got reconcile.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, reconcile.OutcomeUpdated, got.Outcome)
			assert.Equal(t, donation.StatusSampleCollected, got.NewStatus)
		})
	}
}

func TestTriggerRejectsInvalidBody(t *testing.T) {
	router := newTestRouter(&fakeEngine{}, &fakeSweeper{})

	rec := postJSON(t, router, "/reconcile/screening", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerMapsEngineErrors(t *testing.T) {
	engine := &fakeEngine{resultErr: dErrors.New(dErrors.CodeDataQuality, "invalid blood collection amount -1")}
	router := newTestRouter(engine, &fakeSweeper{})

	rec := postJSON(t, router, "/reconcile/collection", `{"donor_id":"donor-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMedicalHistoryPassesUpdateFlag(t *testing.T) {
	engine := &fakeEngine{result: &reconcile.Result{Success: true, Outcome: reconcile.OutcomeReset}}
	router := newTestRouter(engine, &fakeSweeper{})

	rec := postJSON(t, router, "/reconcile/medical-history", `{"donor_id":"donor-1","is_update":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.lastUpdate)
	assert.Equal(t, "donor-1", engine.lastDonor)
}

func TestHandleSweep(t *testing.T) {
	sweeper := &fakeSweeper{result: &reconcile.SweepResult{
		TotalChecked: 3,
		TotalUpdated: 1,
		TotalErrors:  1,
		Details: []reconcile.SweepDetail{
			{DonorID: "donor-a", DonationID: "don-a", OldStatus: donation.StatusStored, NewStatus: donation.StatusAllocated},
			{DonorID: "donor-c", DonationID: "don-c", Error: "no physical examination linked to donation in testing"},
		},
	}}
	router := newTestRouter(&fakeEngine{}, sweeper)

	rec := postJSON(t, router, "/reconcile/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got reconcile.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalChecked)
	assert.Len(t, got.Details, 2)
}

func TestHandleSweepLockConflict(t *testing.T) {
	sweeper := &fakeSweeper{err: dErrors.New(dErrors.CodeConflict, "a sweep is already in progress")}
	router := newTestRouter(&fakeEngine{}, sweeper)

	rec := postJSON(t, router, "/reconcile/sweep", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleEligibility(t *testing.T) {
	service := &fakeEligibility{result: &eligibility.Result{CanDonateNow: true}}
	r := chi.NewRouter()
	NewDonorHandler(service, testLogger()).Register(r)

	req := httptest.NewRequest(http.MethodGet, "/donors/donor-1/eligibility", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got eligibility.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.CanDonateNow)
}

func TestHandleProgress(t *testing.T) {
	service := &fakeEligibility{progress: &eligibility.Progress{
		Visible:     true,
		Donation:    &donation.Donation{ID: "don-1", CurrentStatus: donation.StatusTesting},
		Eligibility: &eligibility.Result{},
	}}
	r := chi.NewRouter()
	NewDonorHandler(service, testLogger()).Register(r)

	req := httptest.NewRequest(http.MethodGet, "/donors/donor-1/progress", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got eligibility.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Visible)
	require.NotNil(t, got.Donation)
	assert.Equal(t, donation.StatusTesting, got.Donation.CurrentStatus)
}
