package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink persists or forwards events. Implementations must tolerate duplicate
// event IDs.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher accepts events from domain code and hands them to a background
// worker through a buffered inbox. Emitting never blocks reconciliation; if
// the inbox is full the event is dropped and logged, which the at-least-once
// contract tolerates because the next sweep re-derives status from records.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit queues an event, filling in its ID and timestamp when unset.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ChangedAt.IsZero() {
		event.ChangedAt = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "notification inbox full, event dropped",
				"donation_id", event.DonationID,
				"new_status", event.NewStatus,
			)
		}
	}
}

// Inbox exposes the receive side for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Worker consumes events from the publisher's inbox and persists them. It
// keeps background processing testable without wiring queue implementations.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run consumes until the context is cancelled. Sink failures are logged and
// the event is dropped; the batch sweep is the system's retry mechanism.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Publish(ctx, event); err != nil && w.logger != nil {
				w.logger.ErrorContext(ctx, "publish status change failed",
					"event_id", event.ID,
					"donation_id", event.DonationID,
					"error", err,
				)
			}
		}
	}
}

// InMemorySink collects events for tests and for running without Kafka.
type InMemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (s *InMemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}
