package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event[T] is a topic family whose payloads are JSON-encoded T values. The
// pattern is a fmt format, e.g. "chat.room.%s", filled in by Topic.
type Event[T any] struct {
	pattern string
}

// NewEvent creates a typed topic family.
func NewEvent[T any](pattern string) Event[T] {
	return Event[T]{pattern: pattern}
}

// Topic returns the concrete topic name for args.
func (e Event[T]) Topic(args ...any) string {
	if len(args) == 0 {
		return e.pattern
	}
	return fmt.Sprintf(e.pattern, args...)
}

// Publish sends payload on event's topic for args. The compiler ensures
// payload matches T.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T, args ...any) error {
	topic := event.Topic(args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return p.Publish(ctx, Message{
		Topic:   topic,
		Payload: data,
	})
}

// Subscribe decodes each message on event's topic for args into T before
// calling handler. Messages that fail to decode are reported as handler errors.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], handler func(context.Context, T) error, args ...any) error {
	return s.Subscribe(ctx, event.Topic(args...), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload on %s: %w", msg.Topic, err)
		}
		return handler(ctx, payload)
	})
}
