package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"talentflow/internal/eventbus"
	"talentflow/internal/eventbus/metrics"
)

const commitTimeout = 10 * time.Second

// Client is the part of *kgo.Client the consumer needs.
type Client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	PauseFetchPartitions(topicPartitions map[string][]int32) map[string][]int32
	ResumeFetchPartitions(topicPartitions map[string][]int32)
}

type topicPartition struct {
	topic     string
	partition int32
}

func (tp topicPartition) set() map[string][]int32 {
	return map[string][]int32{tp.topic: {tp.partition}}
}

// partitionWorker owns one assigned partition for as long as the assignment
// lasts. It holds at most one batch: the partition stays paused from the
// poll that produced the batch until the worker finished it.
type partitionWorker struct {
	batches chan []*kgo.Record
	cancel  context.CancelFunc
	done    chan struct{}
}

// Consumer feeds records from a consumer group to a handler with one
// goroutine per assigned partition. Offsets are committed per record once
// the handler acknowledged it. A failing record is retried in place and
// blocks only its own partition; the poll loop keeps serving the others.
type Consumer struct {
	client  Client
	handler eventbus.Handler
	retry   eventbus.RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	workers map[topicPartition]*partitionWorker
}

type ConsumerOption func(*Consumer)

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

func WithRetryPolicy(p eventbus.RetryPolicy) ConsumerOption {
	return func(c *Consumer) { c.retry = p }
}

func NewConsumer(client Client, handler eventbus.Handler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		client:  client,
		handler: handler,
		retry:   eventbus.DefaultRetryPolicy(),
		logger:  slog.Default(),
		workers: make(map[topicPartition]*partitionWorker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled or the client is closed, then stops every
// partition worker. Records a worker had not acknowledged stay uncommitted.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.stopAll()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			if len(p.Records) > 0 {
				c.dispatch(ctx, topicPartition{topic: p.Topic, partition: p.Partition}, p.Records)
			}
		})
	}
}

// Revoked stops the workers of partitions taken away by a rebalance and
// waits for them. Wire it as both kgo.OnPartitionsRevoked and
// kgo.OnPartitionsLost; the new owner resumes from the last commit.
func (c *Consumer) Revoked(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
	var stopped []*partitionWorker
	c.mu.Lock()
	for topic, partitions := range revoked {
		for _, p := range partitions {
			tp := topicPartition{topic: topic, partition: p}
			if w, ok := c.workers[tp]; ok {
				w.cancel()
				stopped = append(stopped, w)
				delete(c.workers, tp)
			}
		}
	}
	c.mu.Unlock()
	for _, w := range stopped {
		<-w.done
	}
	// pauses outlive rebalances; a later reassignment must fetch again
	c.client.ResumeFetchPartitions(revoked)
}

func (c *Consumer) dispatch(ctx context.Context, tp topicPartition, records []*kgo.Record) {
	c.client.PauseFetchPartitions(tp.set())

	c.mu.Lock()
	w, ok := c.workers[tp]
	if !ok {
		wctx, cancel := context.WithCancel(ctx)
		w = &partitionWorker{
			batches: make(chan []*kgo.Record, 1),
			cancel:  cancel,
			done:    make(chan struct{}),
		}
		c.workers[tp] = w
		go c.work(wctx, tp, w)
	}
	c.mu.Unlock()

	select {
	case w.batches <- records:
	case <-w.done:
		// revoked between the poll and now; the records return to the new owner
	}
}

func (c *Consumer) work(ctx context.Context, tp topicPartition, w *partitionWorker) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-w.batches:
			for _, r := range batch {
				if err := c.process(ctx, r); err != nil {
					return
				}
			}
			c.client.ResumeFetchPartitions(tp.set())
		}
	}
}

func (c *Consumer) stopAll() {
	c.mu.Lock()
	workers := c.workers
	c.workers = make(map[topicPartition]*partitionWorker)
	c.mu.Unlock()
	for _, w := range workers {
		w.cancel()
	}
	for _, w := range workers {
		<-w.done
	}
}

// process returns an error only when ctx ended before the record was
// acknowledged, leaving its offset uncommitted.
func (c *Consumer) process(ctx context.Context, r *kgo.Record) error {
	evt, err := fromRecord(r)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable record",
			"topic", r.Topic,
			"partition", r.Partition,
			"offset", r.Offset,
			"error", err,
		)
		return c.commit(ctx, r)
	}

	start := time.Now()
	err = c.retry.Deliver(ctx, c.handler, evt, func(err error, wait time.Duration) {
		c.metrics.IncrementRedelivery(evt.Type.String())
		c.logger.WarnContext(ctx, "event handler failed, retrying record",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"partition", r.Partition,
			"offset", r.Offset,
			"retry_in", wait,
			"error", err,
		)
	})
	if err != nil {
		return err
	}
	c.metrics.IncrementHandled(evt.Type.String())
	c.metrics.ObserveHandle(time.Since(start))
	return c.commit(ctx, r)
}

func (c *Consumer) commit(ctx context.Context, r *kgo.Record) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.client.CommitRecords(cctx, r); err != nil {
		// uncommitted records come back after a rebalance
		c.logger.ErrorContext(ctx, "kafka offset commit failed",
			"partition", r.Partition,
			"offset", r.Offset,
			"error", err,
		)
	}
	return nil
}
