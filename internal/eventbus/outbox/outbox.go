// Package outbox stores events in the same transaction as the state change
// that produced them, and relays them to the event bus afterwards.
package outbox

import (
	"context"
	"time"

	"talentflow/internal/events"
)

// Record is one outbox row. Seq is the insertion order.
type Record struct {
	Seq         int64
	Event       events.Event
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// PublishFunc hands a batch to the bus. Returning an error leaves the whole
// batch pending.
type PublishFunc func(ctx context.Context, batch []events.Event) error

// Store is implemented by the memory and postgres outboxes.
type Store interface {
	// Enqueue joins the transaction bound to ctx, if any.
	Enqueue(ctx context.Context, evt events.Event) error
	// ProcessBatch publishes up to limit pending records in insertion order
	// and marks them published. It returns how many were published.
	ProcessBatch(ctx context.Context, limit int, publish PublishFunc) (int, error)
}
