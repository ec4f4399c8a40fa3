package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/internal/events"
)

func jobOffer(t *testing.T) events.Event {
	t.Helper()
	evt, err := events.New(events.TypeJobOfferCreated, "acme",
		events.SubjectIDs{JobOfferID: "offer-1"},
		events.JobOfferCreated{Title: "Go engineer"}, time.Now())
	require.NoError(t, err)
	return evt
}

func TestRouter(t *testing.T) {
	boom := errors.New("boom")

	t.Run("dispatches by type", func(t *testing.T) {
		var seen events.Type
		r := NewRouter(slog.Default(), nil)
		r.Register(HandlerFunc(func(_ context.Context, evt events.Event) error {
			seen = evt.Type
			return boom
		}), events.TypeJobOfferCreated, events.TypeNewCandidateApplied)

		err := r.Handle(context.Background(), jobOffer(t))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, events.TypeJobOfferCreated, seen)
	})

	t.Run("unregistered type goes to fallback", func(t *testing.T) {
		called := false
		r := NewRouter(slog.Default(), HandlerFunc(func(context.Context, events.Event) error {
			called = true
			return nil
		}))
		require.NoError(t, r.Handle(context.Background(), jobOffer(t)))
		assert.True(t, called)
	})

	t.Run("unregistered type without fallback is acknowledged", func(t *testing.T) {
		r := NewRouter(slog.Default(), nil)
		assert.NoError(t, r.Handle(context.Background(), jobOffer(t)))
	})
}

func TestRetryPolicy_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	p := RetryPolicy{Initial: time.Millisecond, Max: 2 * time.Millisecond}
	attempts := 0
	err := p.Deliver(ctx, HandlerFunc(func(context.Context, events.Event) error {
		attempts++
		return errors.New("down")
	}), jobOffer(t), nil)

	require.Error(t, err)
	assert.Greater(t, attempts, 1)
}
