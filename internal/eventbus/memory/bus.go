// Package memory is the in-process event bus: a fixed pool of partition
// workers fed by bounded queues.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"talentflow/internal/eventbus"
	"talentflow/internal/eventbus/metrics"
	"talentflow/internal/events"
)

// Bus routes each event to the partition owning its partition key, so
// events about one candidate are handled in publish order. A handler error
// blocks that partition while the event is redelivered.
type Bus struct {
	handler eventbus.Handler
	queues  []chan events.Event
	retry   eventbus.RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	closed    chan struct{}
}

type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

func WithRetryPolicy(p eventbus.RetryPolicy) Option {
	return func(b *Bus) { b.retry = p }
}

// New creates a bus with partitions workers, each reading a queue of
// queueSize events.
func New(handler eventbus.Handler, partitions, queueSize int, opts ...Option) *Bus {
	if partitions < 1 {
		partitions = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	b := &Bus{
		handler: handler,
		queues:  make([]chan events.Event, partitions),
		retry:   eventbus.DefaultRetryPolicy(),
		logger:  slog.Default(),
		closed:  make(chan struct{}),
	}
	for i := range b.queues {
		b.queues[i] = make(chan events.Event, queueSize)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues events in order. It blocks while the target partition is
// full, until ctx ends or the bus closes.
func (b *Bus) Publish(ctx context.Context, evts ...events.Event) error {
	for _, evt := range evts {
		q := b.queues[b.partition(evt.PartitionKey())]
		select {
		case q <- evt:
			b.metrics.IncrementPublished(evt.Type.String())
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return eventbus.ErrClosed
		}
	}
	return nil
}

func (b *Bus) partition(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(b.queues)))
}

// Run starts one worker per partition and blocks until ctx is cancelled.
// Events still queued at that point are dropped; producers that need
// durability publish through the outbox.
func (b *Bus) Run(ctx context.Context) error {
	defer b.closeOnce.Do(func() { close(b.closed) })

	g, ctx := errgroup.WithContext(ctx)
	for i := range b.queues {
		q := b.queues[i]
		g.Go(func() error {
			b.work(ctx, i, q)
			return nil
		})
	}
	return g.Wait()
}

func (b *Bus) work(ctx context.Context, partition int, q <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-q:
			start := time.Now()
			err := b.retry.Deliver(ctx, b.handler, evt, func(err error, wait time.Duration) {
				b.metrics.IncrementRedelivery(evt.Type.String())
				b.logger.WarnContext(ctx, "event handler failed, redelivering",
					"event_id", evt.ID,
					"event_type", evt.Type,
					"partition", partition,
					"retry_in", wait,
					"error", err,
				)
			})
			if err != nil {
				b.logger.WarnContext(ctx, "bus stopped before event was acknowledged",
					"event_id", evt.ID,
					"event_type", evt.Type,
				)
				return
			}
			b.metrics.IncrementHandled(evt.Type.String())
			b.metrics.ObserveHandle(time.Since(start))
		}
	}
}
