// Package eventbus carries domain events from producers to handlers with
// at-least-once delivery and per-partition-key ordering.
package eventbus

import (
	"context"
	"errors"

	"talentflow/internal/events"
)

// ErrClosed is returned by Publish after the bus stopped.
var ErrClosed = errors.New("event bus closed")

type Publisher interface {
	Publish(ctx context.Context, evts ...events.Event) error
}

// Handler processes one event. Returning nil acknowledges it; any error
// causes the same event to be delivered again.
type Handler interface {
	Handle(ctx context.Context, evt events.Event) error
}

type HandlerFunc func(ctx context.Context, evt events.Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt events.Event) error {
	return f(ctx, evt)
}
