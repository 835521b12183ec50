package donation

import (
	"context"
	"time"

	"hemotrack/internal/recordstore"
)

// Repository provides typed reads and writes over the generic record store
// adapter. The engine reads the most recent child record per donor (or per
// linking id) and never mutates anything except the donation itself and its
// status history.
type Repository struct {
	store recordstore.Client
}

func NewRepository(store recordstore.Client) *Repository {
	return &Repository{store: store}
}

// Store exposes the underlying adapter for callers that seed test fixtures.
func (r *Repository) Store() recordstore.Client {
	return r.store
}

var latestFirst = &recordstore.Order{Field: "created_at", Desc: true}

// ActiveDonation returns the donor's single non-terminal donation, or nil
// when every donation is terminal (a legitimate no-op for reconciliation).
func (r *Repository) ActiveDonation(ctx context.Context, donorID string) (*Donation, error) {
	recs, err := r.store.Query(ctx, recordstore.EntityDonations, recordstore.Query{
		Filters: []recordstore.Filter{recordstore.Eq("donor_id", donorID)},
		Order:   latestFirst,
	})
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		d := decodeDonation(rec)
		if d.Active() {
			return d, nil
		}
	}
	return nil, nil
}

// DonationsByDonor returns all of a donor's donations, most recent first.
func (r *Repository) DonationsByDonor(ctx context.Context, donorID string) ([]*Donation, error) {
	recs, err := r.store.Query(ctx, recordstore.EntityDonations, recordstore.Query{
		Filters: []recordstore.Filter{recordstore.Eq("donor_id", donorID)},
		Order:   latestFirst,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Donation, len(recs))
	for i, rec := range recs {
		out[i] = decodeDonation(rec)
	}
	return out, nil
}

// RecentDonations returns up to limit most-recently-created donations whose
// status is not the cancellation terminal. The batch sweep iterates these.
func (r *Repository) RecentDonations(ctx context.Context, limit int) ([]*Donation, error) {
	recs, err := r.store.Query(ctx, recordstore.EntityDonations, recordstore.Query{
		Filters: []recordstore.Filter{recordstore.Neq("current_status", string(StatusCancelled))},
		Order:   latestFirst,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Donation, len(recs))
	for i, rec := range recs {
		out[i] = decodeDonation(rec)
	}
	return out, nil
}

// CreateDonation inserts a Registered donation for the donor. The caller is
// responsible for the one-active-donation invariant check.
func (r *Repository) CreateDonation(ctx context.Context, donorID string, donationDate time.Time) (*Donation, error) {
	rec, err := r.store.Insert(ctx, recordstore.EntityDonations, recordstore.Record{
		"donor_id":                       donorID,
		"current_status":                 string(StatusRegistered),
		"blood_type":                     "",
		"units_collected":                1.0,
		"donation_date":                  donationDate,
		"medical_history_completed":      false,
		"physical_examination_completed": false,
		"screening_completed":            false,
		"blood_collection_completed":     false,
		"notes":                          "Donation registered.",
	})
	if err != nil {
		return nil, err
	}
	return decodeDonation(rec), nil
}

// UpdateDonation writes the given fields on a donation. Callers pass a full
// re-derivation from a fresh read, never a delta on a stale copy.
func (r *Repository) UpdateDonation(ctx context.Context, donationID string, fields recordstore.Record) (*Donation, error) {
	rec, err := r.store.Update(ctx, recordstore.EntityDonations, donationID, fields, "")
	if err != nil {
		return nil, err
	}
	return decodeDonation(rec), nil
}

// AppendStatusHistory records a status transition in the append-only log.
func (r *Repository) AppendStatusHistory(ctx context.Context, donationID string, status Status, at time.Time) error {
	_, err := r.store.Insert(ctx, recordstore.EntityStatusHistory, recordstore.Record{
		"donation_id": donationID,
		"status":      string(status),
		"changed_at":  at,
	})
	return err
}

// StatusHistory returns a donation's status log, most recent change first.
func (r *Repository) StatusHistory(ctx context.Context, donationID string) ([]StatusHistoryEntry, error) {
	recs, err := r.store.Query(ctx, recordstore.EntityStatusHistory, recordstore.Query{
		Filters: []recordstore.Filter{recordstore.Eq("donation_id", donationID)},
		Order:   &recordstore.Order{Field: "changed_at", Desc: true},
	})
	if err != nil {
		return nil, err
	}
	out := make([]StatusHistoryEntry, len(recs))
	for i, rec := range recs {
		status, _ := ParseLegacyStatus(rec.String("status"))
		out[i] = StatusHistoryEntry{
			ID:         rec.String("id"),
			DonationID: rec.String("donation_id"),
			Status:     status,
			ChangedAt:  rec.Time("changed_at"),
		}
	}
	return out, nil
}

// LatestDonorForm returns the donor's most recent intake form, or nil.
func (r *Repository) LatestDonorForm(ctx context.Context, donorID string) (*DonorForm, error) {
	rec, err := r.latest(ctx, recordstore.EntityDonorForms, "donor_id", donorID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &DonorForm{
		ID:        rec.String("id"),
		DonorID:   rec.String("donor_id"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}, nil
}

// LatestScreening returns the most recent screening form linked to the
// donor's latest intake form, or nil when either is absent.
func (r *Repository) LatestScreening(ctx context.Context, donorID string) (*ScreeningForm, error) {
	form, err := r.LatestDonorForm(ctx, donorID)
	if err != nil || form == nil {
		return nil, err
	}
	rec, err := r.latest(ctx, recordstore.EntityScreeningForms, "donor_form_id", form.ID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &ScreeningForm{
		ID:                rec.String("id"),
		DonorFormID:       rec.String("donor_form_id"),
		DisapprovalReason: rec.String("disapproval_reason"),
		BloodType:         rec.String("blood_type"),
		CreatedAt:         rec.Time("created_at"),
		UpdatedAt:         rec.Time("updated_at"),
	}, nil
}

// LatestExam returns the donor's most recent physical examination, or nil.
func (r *Repository) LatestExam(ctx context.Context, donorID string) (*PhysicalExamination, error) {
	rec, err := r.latest(ctx, recordstore.EntityPhysicalExams, "donor_id", donorID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &PhysicalExamination{
		ID:        rec.String("id"),
		DonorID:   rec.String("donor_id"),
		Remarks:   rec.String("remarks"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}, nil
}

// CollectionByExam returns the most recent collection record linked to the
// given physical examination, or nil.
func (r *Repository) CollectionByExam(ctx context.Context, examID string) (*BloodCollection, error) {
	rec, err := r.latest(ctx, recordstore.EntityBloodCollections, "exam_id", examID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &BloodCollection{
		ID:          rec.String("id"),
		ExamID:      rec.String("exam_id"),
		AmountTaken: rec.Float("amount_taken"),
		CreatedAt:   rec.Time("created_at"),
	}, nil
}

// LatestUnit returns the donor's most recent blood-bank inventory unit, or nil.
func (r *Repository) LatestUnit(ctx context.Context, donorID string) (*InventoryUnit, error) {
	rec, err := r.latest(ctx, recordstore.EntityInventoryUnits, "donor_id", donorID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &InventoryUnit{
		ID:           rec.String("id"),
		DonorID:      rec.String("donor_id"),
		Status:       rec.String("status"),
		Units:        rec.Float("units"),
		DisposedAt:   rec.TimePtr("disposed_at"),
		HandedOverAt: rec.TimePtr("handed_over_at"),
		HandedOverTo: rec.String("handed_over_to"),
		CreatedAt:    rec.Time("created_at"),
	}, nil
}

// LatestMedicalHistory returns the donor's most recent medical history, or nil.
func (r *Repository) LatestMedicalHistory(ctx context.Context, donorID string) (*MedicalHistory, error) {
	rec, err := r.latest(ctx, recordstore.EntityMedicalHistories, "donor_id", donorID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &MedicalHistory{
		ID:        rec.String("id"),
		DonorID:   rec.String("donor_id"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}, nil
}

func (r *Repository) latest(ctx context.Context, entity, field, value string) (recordstore.Record, error) {
	recs, err := r.store.Query(ctx, entity, recordstore.Query{
		Filters: []recordstore.Filter{recordstore.Eq(field, value)},
		Order:   latestFirst,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func decodeDonation(rec recordstore.Record) *Donation {
	status, ok := ParseLegacyStatus(rec.String("current_status"))
	if !ok {
		status = Status(rec.String("current_status"))
	}
	return &Donation{
		ID:                           rec.String("id"),
		DonorID:                      rec.String("donor_id"),
		CurrentStatus:                status,
		BloodType:                    rec.String("blood_type"),
		UnitsCollected:               rec.Float("units_collected"),
		DonationDate:                 rec.Time("donation_date"),
		MedicalHistoryCompleted:      rec.Bool("medical_history_completed"),
		PhysicalExaminationCompleted: rec.Bool("physical_examination_completed"),
		ScreeningCompleted:           rec.Bool("screening_completed"),
		BloodCollectionCompleted:     rec.Bool("blood_collection_completed"),
		Notes:                        rec.String("notes"),
		CreatedAt:                    rec.Time("created_at"),
	}
}
