// Package donation defines the donation lifecycle data model: the donation
// record that the status engine owns, the child records written by other
// actors, and the status enum with its legacy string mapping.
package donation

import (
	"strings"
	"time"
)

// Status is a donation's position in the lab pipeline.
//
// The legacy store used one "Ready for Use" label for two unrelated meanings:
// cancelled-and-discarded and processed-and-ready-for-distribution. The enum
// splits them; LegacyLabel preserves interop with stores that still carry the
// old strings.
type Status string

const (
	StatusRegistered      Status = "registered"
	StatusSampleCollected Status = "sample_collected"
	StatusTesting         Status = "testing"
	StatusProcessed       Status = "processed"

	// StatusBuffer is an administrative intermediate used by the blood bank;
	// it is treated as consumed for lifecycle purposes.
	StatusBuffer Status = "buffer"

	StatusStored    Status = "stored"
	StatusAllocated Status = "allocated"
	StatusUsed      Status = "used"

	// StatusCancelled terminates a donation on screening disapproval,
	// physical-exam deferral, or a zero-amount collection.
	StatusCancelled Status = "cancelled"

	// StatusReadyForDistribution marks a processed unit cleared for
	// distribution. It is produced by upstream systems, not by the engine,
	// but the engine must keep reconciling donations that carry it.
	StatusReadyForDistribution Status = "ready_for_distribution"
)

// Terminal reports whether no further automatic transition is attempted,
// except the inventory-disposition override which still captures cancelled
// donations whose physical unit was disposed or issued.
func (s Status) Terminal() bool {
	return s == StatusUsed || s == StatusCancelled
}

// InventoryPhase reports whether the donation is far enough along for
// blood-bank unit status to drive transitions.
func (s Status) InventoryPhase() bool {
	switch s {
	case StatusTesting, StatusProcessed, StatusReadyForDistribution,
		StatusBuffer, StatusStored, StatusAllocated:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusRegistered, StatusSampleCollected, StatusTesting,
		StatusProcessed, StatusBuffer, StatusStored, StatusAllocated,
		StatusUsed, StatusCancelled, StatusReadyForDistribution:
		return true
	}
	return false
}

// legacyLabels maps each status to the string the legacy store displays.
var legacyLabels = map[Status]string{
	StatusRegistered:           "Registered",
	StatusSampleCollected:      "Sample Collected",
	StatusTesting:              "Testing",
	StatusProcessed:            "Processed",
	StatusBuffer:               "Buffer",
	StatusStored:               "Stored",
	StatusAllocated:            "Allocated",
	StatusUsed:                 "Used",
	StatusCancelled:            "Ready for Use",
	StatusReadyForDistribution: "Ready for Use",
}

// LegacyLabel returns the status string understood by the legacy store.
func (s Status) LegacyLabel() string {
	if label, ok := legacyLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseLegacyStatus maps a legacy store string onto the enum. "Expired" is a
// display synonym for a disposed unit and maps to Used. "Ready for Use" is
// ambiguous in legacy data; without the discard context it is read as
// ready-for-distribution.
func ParseLegacyStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "registered":
		return StatusRegistered, true
	case "sample collected":
		return StatusSampleCollected, true
	case "testing":
		return StatusTesting, true
	case "processed":
		return StatusProcessed, true
	case "buffer":
		return StatusBuffer, true
	case "stored":
		return StatusStored, true
	case "allocated":
		return StatusAllocated, true
	case "used", "expired":
		return StatusUsed, true
	case "ready for use":
		return StatusReadyForDistribution, true
	}
	if s := Status(raw); s.Valid() {
		return s, true
	}
	return "", false
}

// Donation is one blood-donation attempt, tracked end-to-end through the lab
// pipeline. It is mutated exclusively by the status engine; at most one
// donation per donor is non-terminal at a time.
type Donation struct {
	ID             string
	DonorID        string
	CurrentStatus  Status
	BloodType      string
	UnitsCollected float64
	DonationDate   time.Time

	MedicalHistoryCompleted      bool
	PhysicalExaminationCompleted bool
	ScreeningCompleted           bool
	BloodCollectionCompleted     bool

	// Notes carries a human-readable reason for the last transition; it is
	// overwritten on every transition and surfaced on the donor tracker.
	Notes string

	CreatedAt time.Time
}

// Active reports whether the donation still participates in reconciliation.
func (d *Donation) Active() bool {
	return !d.CurrentStatus.Terminal()
}

// StatusHistoryEntry is one row of the append-only status log.
type StatusHistoryEntry struct {
	ID         string
	DonationID string
	Status     Status
	ChangedAt  time.Time
}

// DonorForm is the donor-facing intake form; screening forms link to it.
type DonorForm struct {
	ID        string
	DonorID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScreeningForm is the staff screening outcome for a donor form. A non-empty
// DisapprovalReason cancels the donation.
type ScreeningForm struct {
	ID                string
	DonorFormID       string
	DisapprovalReason string
	BloodType         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PhysicalExamination is the clinical exam record. Deferral is expressed as
// free-text remarks in the legacy system, so detection is substring-based.
type PhysicalExamination struct {
	ID        string
	DonorID   string
	Remarks   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deferred reports whether the exam remarks mark the donor as deferred.
func (e *PhysicalExamination) Deferred() bool {
	remarks := strings.ToLower(e.Remarks)
	return strings.Contains(remarks, "permanently deferred") ||
		strings.Contains(remarks, "temporarily deferred")
}

// BloodCollection records the amount drawn during collection, linked to the
// physical examination that authorized it.
type BloodCollection struct {
	ID          string
	ExamID      string
	AmountTaken float64
	CreatedAt   time.Time
}

// InventoryUnit is the blood bank's record of the physical unit. Its
// timestamps are ground truth and override stage-derived status.
type InventoryUnit struct {
	ID      string
	DonorID string
	Status  string

	// Units is the volume measured by the blood bank; zero when the bank
	// has not recorded one.
	Units float64

	DisposedAt   *time.Time
	HandedOverAt *time.Time
	HandedOverTo string
	CreatedAt    time.Time
}

// MedicalHistory is the donor's questionnaire record. Only its timestamps
// matter to the engine; answers are validated elsewhere.
type MedicalHistory struct {
	ID        string
	DonorID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
