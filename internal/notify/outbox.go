package notify

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the postgres driver for the outbox connection.
	_ "github.com/lib/pq"
)

// OutboxSink persists status-change events to the outbox table so an external
// relay (or an operator) can replay them. Used when Kafka is not configured
// but downstream consumers still need a durable feed.
type OutboxSink struct {
	db *sql.DB
}

// NewOutboxSink opens a database/sql connection for the outbox writer.
func NewOutboxSink(databaseURL string) (*OutboxSink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open outbox connection: %w", err)
	}
	return &OutboxSink{db: db}, nil
}

func (s *OutboxSink) Publish(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_change_outbox
			(id, donor_id, donation_id, old_status, new_status, reason, recorded_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.DonorID, event.DonationID,
		string(event.OldStatus), string(event.NewStatus),
		event.Reason, event.RecordedBy, event.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status change outbox: %w", err)
	}
	return nil
}

// Close releases the outbox connection.
func (s *OutboxSink) Close() error {
	return s.db.Close()
}
