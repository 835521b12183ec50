package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemotrack/internal/donation"
	"hemotrack/internal/recordstore"
	dErrors "hemotrack/pkg/domain-errors"
)

type fakeLocker struct {
	held     bool
	acquires int
	releases int
}

func (l *fakeLocker) Acquire(context.Context) (bool, error) {
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Release(context.Context) error {
	l.held = false
	l.releases++
	return nil
}

type SweepSuite struct {
	suite.Suite
	ctx     context.Context
	store   recordstore.Client
	repo    *donation.Repository
	service *Service
}

func TestSweepSuite(t *testing.T) {
	suite.Run(t, new(SweepSuite))
}

func (s *SweepSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = donation.NewRepository(recordstore.NewInMemoryClient())
	s.store = s.repo.Store()

	service, err := NewService(s.repo)
	s.Require().NoError(err)
	s.service = service
}

func (s *SweepSuite) seedDonation(donorID string, status donation.Status, at time.Time) string {
	rec, err := s.store.Insert(s.ctx, recordstore.EntityDonations, recordstore.Record{
		"donor_id":       donorID,
		"current_status": string(status),
		"created_at":     at,
	})
	s.Require().NoError(err)
	return rec.String("id")
}

func (s *SweepSuite) TestRunReconcilesRecentDonations() {
	now := time.Now()

	// donor-a: stored unit reports allocated, sweep should advance it.
	s.seedDonation("donor-a", donation.StatusStored, now.Add(-3*time.Minute))
	_, err := s.store.Insert(s.ctx, recordstore.EntityInventoryUnits, recordstore.Record{
		"donor_id":   "donor-a",
		"status":     "Allocated",
		"created_at": now,
	})
	s.Require().NoError(err)

	// donor-b: registered with nothing filed yet, legitimate no-op.
	s.seedDonation("donor-b", donation.StatusRegistered, now.Add(-2*time.Minute))

	// donor-c: testing with no examination on file, surfaces as an error.
	s.seedDonation("donor-c", donation.StatusTesting, now.Add(-time.Minute))

	// donor-d: already consumed, skipped without an engine pass.
	s.seedDonation("donor-d", donation.StatusUsed, now)

	sweeper := NewSweeper(s.service, nil, nil, 100)
	result, err := sweeper.Run(s.ctx)
	s.Require().NoError(err)

	s.Equal(3, result.TotalChecked)
	s.Equal(1, result.TotalUpdated)
	s.Equal(1, result.TotalErrors)
	s.Equal(1, result.TotalSkipped)
	s.Require().Len(result.Details, 2)

	byDonor := map[string]SweepDetail{}
	for _, d := range result.Details {
		byDonor[d.DonorID] = d
	}

	updated := byDonor["donor-a"]
	s.Equal(donation.StatusStored, updated.OldStatus)
	s.Equal(donation.StatusAllocated, updated.NewStatus)
	s.Empty(updated.Error)

	failed := byDonor["donor-c"]
	s.NotEmpty(failed.Error)
	s.Contains(failed.Error, "no physical examination")
}

func (s *SweepSuite) TestRunHonorsLimit() {
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.seedDonation("donor", donation.StatusRegistered, now.Add(time.Duration(i)*time.Second))
	}

	sweeper := NewSweeper(s.service, nil, nil, 2)
	result, err := sweeper.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, result.TotalChecked)
}

func (s *SweepSuite) TestRunRefusedWhenLockHeld() {
	locker := &fakeLocker{held: true}
	sweeper := NewSweeper(s.service, locker, nil, 100)

	_, err := sweeper.Run(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
	s.Zero(locker.releases)
}

func (s *SweepSuite) TestRunReleasesLock() {
	locker := &fakeLocker{}
	sweeper := NewSweeper(s.service, locker, nil, 100)

	_, err := sweeper.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, locker.acquires)
	s.Equal(1, locker.releases)
	s.False(locker.held)
}
