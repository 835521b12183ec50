package reconcile

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"hemotrack/internal/donation"
)

// Snapshot is everything the decision rules may look at, assembled once per
// reconciliation pass. Isolating the state machine from I/O this way keeps
// the rules pure and unit-testable without a live store.
type Snapshot struct {
	Donation   *donation.Donation
	Screening  *donation.ScreeningForm
	Exam       *donation.PhysicalExamination
	Collection *donation.BloodCollection
	Unit       *donation.InventoryUnit
	Medical    *donation.MedicalHistory

	FetchedAt time.Time
}

const snapshotTimeout = 10 * time.Second

// loadSnapshot gathers the donation's child records in parallel with shared
// context cancellation. The collection read chains behind the exam read
// because collections link to the exam id.
func (s *Service) loadSnapshot(ctx context.Context, d *donation.Donation) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	snap := &Snapshot{
		Donation:  d,
		FetchedAt: time.Now(),
	}

	g.Go(func() error {
		start := time.Now()
		screening, err := s.repo.LatestScreening(ctx, d.DonorID)
		s.metrics.ObserveSnapshotLatency("screening", time.Since(start))
		if err != nil {
			return err
		}
		snap.Screening = screening
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		exam, err := s.repo.LatestExam(ctx, d.DonorID)
		s.metrics.ObserveSnapshotLatency("exam", time.Since(start))
		if err != nil {
			return err
		}
		snap.Exam = exam
		if exam == nil {
			return nil
		}

		start = time.Now()
		collection, err := s.repo.CollectionByExam(ctx, exam.ID)
		s.metrics.ObserveSnapshotLatency("collection", time.Since(start))
		if err != nil {
			return err
		}
		snap.Collection = collection
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		unit, err := s.repo.LatestUnit(ctx, d.DonorID)
		s.metrics.ObserveSnapshotLatency("unit", time.Since(start))
		if err != nil {
			return err
		}
		snap.Unit = unit
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		medical, err := s.repo.LatestMedicalHistory(ctx, d.DonorID)
		s.metrics.ObserveSnapshotLatency("medical", time.Since(start))
		if err != nil {
			return err
		}
		snap.Medical = medical
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
