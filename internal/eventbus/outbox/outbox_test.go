package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/internal/events"
	"talentflow/pkg/platform/sentinel"
)

type recordingPublisher struct {
	mu   sync.Mutex
	got  []events.Event
	fail error
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.got = append(p.got, evts...)
	return nil
}

func newEvent(t *testing.T) events.Event {
	t.Helper()
	evt, err := events.New(events.TypeCandidateStateChanged, "acme",
		events.SubjectIDs{CandidateID: "42"},
		events.CandidateStateChanged{NewState: "PRESCREENED"}, time.Now())
	require.NoError(t, err)
	return evt
}

func TestRelay_PublishesInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	var want []events.Event
	for i := 0; i < 5; i++ {
		evt := newEvent(t)
		want = append(want, evt)
		require.NoError(t, store.Enqueue(ctx, evt))
	}

	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithBatchSize(2))
	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, want, pub.got)
	assert.Zero(t, store.Pending())
}

func TestRelay_FailedPublishLeavesRecordsPending(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Enqueue(ctx, newEvent(t)))

	pub := &recordingPublisher{fail: errors.New("broker down")}
	relay := NewRelay(store, pub)
	_, err := relay.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, store.Pending())

	pub.fail = nil
	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, store.Pending())
}

func TestInMemoryStore_RejectsDuplicateEventID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	evt := newEvent(t)
	require.NoError(t, store.Enqueue(ctx, evt))
	assert.ErrorIs(t, store.Enqueue(ctx, evt), sentinel.ErrDuplicate)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := NewInMemoryStore()
	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.NoError(t, store.Enqueue(ctx, newEvent(t)))
	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.got) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
