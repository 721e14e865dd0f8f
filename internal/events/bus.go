// Package events fans domain events out to in-process listeners.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-orderlines/internal/obs"
)

// Event is a single notification. Payload must be JSON encodable for
// listeners that forward it out of process.
type Event struct {
	Topic      string    `json:"topic"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Listener reacts to published events.
type Listener interface {
	Handle(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

// Handle calls f.
func (f ListenerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Bus delivers events to every listener registered for the topic. Listeners
// in Topics receive only their topic; listeners in All receive everything.
//
// Publishing is fire-and-forget: listener failures are logged and never
// reach the publisher.
type Bus struct {
	All    []Listener
	Topics map[string][]Listener
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Subscribe registers l for topic. An empty topic subscribes to all events.
func (b *Bus) Subscribe(topic string, l Listener) {
	if l == nil {
		return
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		b.All = append(b.All, l)
		return
	}
	if b.Topics == nil {
		b.Topics = make(map[string][]Listener)
	}
	b.Topics[topic] = append(b.Topics[topic], l)
}

// Publish delivers ev synchronously in registration order.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		if b.Now != nil {
			ev.OccurredAt = b.Now()
		} else {
			ev.OccurredAt = time.Now().UTC()
		}
	}
	for _, l := range b.Topics[ev.Topic] {
		b.deliver(ctx, l, ev)
	}
	for _, l := range b.All {
		b.deliver(ctx, l, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, l Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			obs.LoggerFor(ctx, b.Logger).Error().
				Str("topic", ev.Topic).
				Interface("panic", rec).
				Msg("event_listener_panic")
		}
	}()
	if err := l.Handle(ctx, ev); err != nil {
		obs.LoggerFor(ctx, b.Logger).Warn().
			Err(err).
			Str("topic", ev.Topic).
			Msg("event_listener_failed")
	}
}
