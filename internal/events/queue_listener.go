package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-orderlines/internal/queue"
)

// DefaultOutboxKind is the queue kind external consumers read events from.
const DefaultOutboxKind = "events:outbox"

// TaskEnqueuer is the subset of queue.Enqueuer used by QueueListener.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// QueueListener forwards events to the Redis queue so consumers outside the
// process get them at least once.
type QueueListener struct {
	Queue TaskEnqueuer
	Kind  string
}

// Handle encodes ev as JSON and enqueues it under a fresh idempotency key.
func (l QueueListener) Handle(ctx context.Context, ev Event) error {
	if l.Queue == nil {
		return fmt.Errorf("events: queue listener not configured")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", ev.Topic, err)
	}
	kind := l.Kind
	if kind == "" {
		kind = DefaultOutboxKind
	}
	if err := l.Queue.Enqueue(ctx, queue.Task{
		Kind:           kind,
		Payload:        payload,
		IdempotencyKey: uuid.NewString(),
	}); err != nil {
		return fmt.Errorf("events: enqueue %s: %w", ev.Topic, err)
	}
	return nil
}
