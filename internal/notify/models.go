// Package notify publishes status-change events for downstream consumers.
// Delivery is at-least-once; repeated reconciliation never re-emits an event
// for an unchanged status, but a retried write after a lost ack can.
package notify

import (
	"time"

	"hemotrack/internal/donation"
)

// Event captures one donation status transition. Keep it transport-agnostic
// so sinks (outbox table, Kafka, in-memory) can fan out.
type Event struct {
	ID         string          `json:"id"`
	DonorID    string          `json:"donor_id"`
	DonationID string          `json:"donation_id"`
	OldStatus  donation.Status `json:"old_status"`
	NewStatus  donation.Status `json:"new_status"`
	Reason     string          `json:"reason,omitempty"`

	// RecordedBy names the submitting client (normalized user agent or IP)
	// when the transition came from an interactive trigger.
	RecordedBy string `json:"recorded_by,omitempty"`

	ChangedAt time.Time `json:"changed_at"`
}
