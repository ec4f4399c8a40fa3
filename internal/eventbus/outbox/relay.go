package outbox

import (
	"context"
	"log/slog"
	"time"

	"talentflow/internal/events"
)

// Publisher is the bus side of the relay.
type Publisher interface {
	Publish(ctx context.Context, evts ...events.Event) error
}

// Relay moves committed outbox records onto the bus at least once.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	onPublish func(n int)
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPublishHook is called with the size of every published batch.
func WithPublishHook(fn func(n int)) RelayOption {
	return func(r *Relay) { r.onPublish = fn }
}

func NewRelay(store Store, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		interval:  200 * time.Millisecond,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes pending records until the outbox is drained or a batch
// fails. It returns the number published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	publish := func(ctx context.Context, batch []events.Event) error {
		return r.publisher.Publish(ctx, batch...)
	}
	total := 0
	for {
		n, err := r.store.ProcessBatch(ctx, r.batchSize, publish)
		if err != nil {
			return total, err
		}
		total += n
		if n > 0 && r.onPublish != nil {
			r.onPublish(n)
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}
