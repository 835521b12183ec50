package reconcile

import (
	"fmt"
	"strings"

	"hemotrack/internal/donation"
	dErrors "hemotrack/pkg/domain-errors"
)

// Change describes the transition the engine should write: the next status,
// the audit note, and the field mutations that ride along with it.
type Change struct {
	To     donation.Status
	Reason string
	Note   string

	ScreeningCompleted  bool
	ExamCompleted       bool
	CollectionCompleted bool

	UnitsCollected *float64
	BloodType      string
}

// Decision is the outcome of one pure rule evaluation: a change to apply, a
// definitive no-change with its reason, or a data-quality error.
type Decision struct {
	Change         *Change
	NoChangeReason string
	Err            error
}

func noChange(reason string) Decision {
	return Decision{NoChangeReason: reason}
}

// rule pairs an applicability predicate with an evaluation. Rules are checked
// in order and the first applicable rule decides; later rules are never
// consulted. This makes the precedence table explicit and each rule
// independently testable.
type rule struct {
	name     string
	applies  func(*Snapshot) bool
	evaluate func(*Snapshot) Decision
}

// rules is the priority table. Inventory timestamps are ground truth from the
// physical system and outrank everything; inventory status outranks clinical
// forms; clinical forms only drive the pre-inventory stages.
var rules = []rule{
	{name: "inventory_override", applies: inventoryOverrideApplies, evaluate: inventoryOverride},
	{name: "inventory_status", applies: inventoryStatusApplies, evaluate: inventoryStatus},
	{name: "stage_advancement", applies: stageAdvancementApplies, evaluate: stageAdvancement},
}

// Decide evaluates the priority table against a snapshot. It is a pure
// function: re-running it with the same snapshot always yields the same
// decision, which is what makes reconciliation idempotent and safe to repeat.
func Decide(snap *Snapshot) Decision {
	for _, r := range rules {
		if r.applies(snap) {
			return r.evaluate(snap)
		}
	}
	if snap.Donation.CurrentStatus.Terminal() {
		return noChange("donation is terminal")
	}
	return noChange("no applicable rule")
}

// Rule 1: disposition timestamps on the inventory unit override every
// stage-derived status, including the cancellation terminal. Only a donation
// already in Used is exempt.
func inventoryOverrideApplies(s *Snapshot) bool {
	if s.Donation.CurrentStatus == donation.StatusUsed || s.Unit == nil {
		return false
	}
	return s.Unit.DisposedAt != nil || s.Unit.HandedOverAt != nil
}

func inventoryOverride(s *Snapshot) Decision {
	if s.Unit.DisposedAt != nil {
		return Decision{Change: &Change{
			To:     donation.StatusUsed,
			Reason: "disposed",
			Note:   "Blood unit disposed by the blood bank; shown to the donor as expired.",
		}}
	}
	note := "Blood unit handed over to a hospital."
	if s.Unit.HandedOverTo != "" {
		note = fmt.Sprintf("Blood unit handed over to %s.", s.Unit.HandedOverTo)
	}
	return Decision{Change: &Change{
		To:     donation.StatusUsed,
		Reason: "handed over",
		Note:   note,
	}}
}

// Rule 2: once a unit exists and the donation is in the inventory phase, the
// unit's status field drives transitions. Matching is case-insensitive.
func inventoryStatusApplies(s *Snapshot) bool {
	return s.Unit != nil && s.Donation.CurrentStatus.InventoryPhase()
}

func inventoryStatus(s *Snapshot) Decision {
	current := s.Donation.CurrentStatus
	switch strings.ToLower(strings.TrimSpace(s.Unit.Status)) {
	case "used", "transfused", "buffer":
		// Buffer is an administrative intermediate equivalent to consumed.
		return Decision{Change: &Change{
			To:     donation.StatusUsed,
			Reason: "consumed",
			Note:   "Blood unit consumed per blood bank inventory.",
		}}
	case "valid":
		// Only advances out of Testing; prevents re-triggering once Processed.
		if current != donation.StatusTesting {
			return noChange("inventory reports valid but donation already advanced")
		}
		change := &Change{
			To:     donation.StatusProcessed,
			Reason: "validated",
			Note:   "Blood unit validated by the blood bank; donation processed.",
		}
		if units := collectedUnits(s); units > 0 {
			change.UnitsCollected = &units
		}
		return Decision{Change: change}
	case "disposed", "expired":
		return Decision{Change: &Change{
			To:     donation.StatusUsed,
			Reason: "disposed",
			Note:   "Blood unit disposed by the blood bank; shown to the donor as expired.",
		}}
	case "stored":
		if current == donation.StatusStored {
			return noChange("already stored")
		}
		return Decision{Change: &Change{
			To:     donation.StatusStored,
			Reason: "stored",
			Note:   "Blood unit stored in the blood bank.",
		}}
	case "allocated":
		if current == donation.StatusAllocated {
			return noChange("already allocated")
		}
		return Decision{Change: &Change{
			To:     donation.StatusAllocated,
			Reason: "allocated",
			Note:   "Blood unit allocated for transfusion.",
		}}
	default:
		return noChange(fmt.Sprintf("unrecognized inventory status %q", s.Unit.Status))
	}
}

// collectedUnits resolves the volume to record with a validated unit: the
// blood bank's own figure wins, the collection record is the fallback.
func collectedUnits(s *Snapshot) float64 {
	if s.Unit.Units > 0 {
		return s.Unit.Units
	}
	if s.Collection != nil {
		return s.Collection.AmountTaken
	}
	return 0
}

// Rule 3: clinical forms drive the pre-inventory stages. Testing only lands
// here when no inventory unit exists yet.
func stageAdvancementApplies(s *Snapshot) bool {
	switch s.Donation.CurrentStatus {
	case donation.StatusRegistered, donation.StatusSampleCollected:
		return true
	case donation.StatusTesting:
		return s.Unit == nil
	}
	return false
}

func stageAdvancement(s *Snapshot) Decision {
	switch s.Donation.CurrentStatus {
	case donation.StatusRegistered:
		if s.Screening != nil {
			return evaluateScreening(s.Screening)
		}
		if s.Exam != nil {
			return evaluateExam(s.Exam)
		}
		return noChange("awaiting screening or physical examination")
	case donation.StatusSampleCollected:
		if s.Exam != nil {
			return evaluateExam(s.Exam)
		}
		return noChange("awaiting physical examination")
	case donation.StatusTesting:
		return evaluateCollection(s)
	}
	return noChange("no applicable stage rule")
}

func evaluateScreening(scr *donation.ScreeningForm) Decision {
	// Disapproval always wins, even when a blood type is also present.
	if reason := strings.TrimSpace(scr.DisapprovalReason); reason != "" {
		return Decision{Change: &Change{
			To:     donation.StatusCancelled,
			Reason: reason,
			Note:   reason,
		}}
	}
	return Decision{Change: &Change{
		To:                 donation.StatusSampleCollected,
		Reason:             "screening approved",
		Note:               "Screening approved; blood sample collected.",
		ScreeningCompleted: true,
		BloodType:          scr.BloodType,
	}}
}

func evaluateExam(exam *donation.PhysicalExamination) Decision {
	if exam.Deferred() {
		return Decision{Change: &Change{
			To:     donation.StatusCancelled,
			Reason: exam.Remarks,
			Note:   exam.Remarks,
		}}
	}
	return Decision{Change: &Change{
		To:            donation.StatusTesting,
		Reason:        "physical examination passed",
		Note:          "Physical examination passed; laboratory testing in progress.",
		ExamCompleted: true,
	}}
}

func evaluateCollection(s *Snapshot) Decision {
	if s.Exam == nil {
		return Decision{Err: dErrors.New(dErrors.CodeNotFound,
			"no physical examination linked to donation in testing")}
	}
	if s.Collection == nil {
		return noChange("awaiting blood collection")
	}

	amount := s.Collection.AmountTaken
	switch {
	case amount >= 1:
		units := amount
		return Decision{Change: &Change{
			To:                  donation.StatusProcessed,
			Reason:              "blood collected",
			Note:                fmt.Sprintf("Blood collection recorded %.1f unit(s); donation processed.", amount),
			CollectionCompleted: true,
			UnitsCollected:      &units,
		}}
	case amount == 0:
		return Decision{Change: &Change{
			To:     donation.StatusCancelled,
			Reason: "no blood collected",
			Note:   "Blood collection recorded no units; donation cancelled.",
		}}
	default:
		return Decision{Err: dErrors.New(dErrors.CodeDataQuality,
			fmt.Sprintf("invalid blood collection amount %v", amount))}
	}
}
