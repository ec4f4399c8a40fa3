package eventbus

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"talentflow/internal/events"
)

// RetryPolicy redelivers a failed event with exponential backoff until the
// handler acknowledges it or ctx ends.
type RetryPolicy struct {
	Initial        time.Duration
	Max            time.Duration
	HandlerTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: 100 * time.Millisecond, Max: 10 * time.Second, HandlerTimeout: 15 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Deliver calls h until it returns nil. onRetry, when set, observes every
// failure before the wait. The returned error is non-nil only when ctx ended
// first.
func (p RetryPolicy) Deliver(ctx context.Context, h Handler, evt events.Event, onRetry func(err error, wait time.Duration)) error {
	op := func() error {
		hctx := ctx
		if p.HandlerTimeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(ctx, p.HandlerTimeout)
			defer cancel()
		}
		return h.Handle(hctx, evt)
	}
	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, wait time.Duration) { onRetry(err, wait) }
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}
