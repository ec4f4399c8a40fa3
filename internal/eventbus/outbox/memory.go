package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"talentflow/internal/events"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
)

// InMemoryStore is the outbox used when no database is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	publish sync.Mutex
	seq     int64
	records []*Record
	seen    map[domain.EventID]struct{}
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		seen: make(map[domain.EventID]struct{}),
		now:  time.Now,
	}
}

func (s *InMemoryStore) Enqueue(ctx context.Context, evt events.Event) error {
	return s.EnqueueAll(ctx, evt)
}

// EnqueueAll stores every event or none of them.
func (s *InMemoryStore) EnqueueAll(_ context.Context, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[domain.EventID]struct{}, len(evts))
	for _, evt := range evts {
		_, dup := s.seen[evt.ID]
		_, repeated := batch[evt.ID]
		if dup || repeated {
			return fmt.Errorf("enqueue event %s: %w", evt.ID, sentinel.ErrDuplicate)
		}
		batch[evt.ID] = struct{}{}
	}
	now := s.now()
	for _, evt := range evts {
		s.seq++
		s.records = append(s.records, &Record{Seq: s.seq, Event: evt, CreatedAt: now})
		s.seen[evt.ID] = struct{}{}
	}
	return nil
}

// ProcessBatch serializes concurrent relays so insertion order is kept.
func (s *InMemoryStore) ProcessBatch(ctx context.Context, limit int, publish PublishFunc) (int, error) {
	s.publish.Lock()
	defer s.publish.Unlock()

	s.mu.Lock()
	pending := make([]*Record, 0, limit)
	for _, r := range s.records {
		if len(pending) == limit {
			break
		}
		pending = append(pending, r)
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}
	batch := make([]events.Event, len(pending))
	for i, r := range pending {
		batch[i] = r.Event
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Published records are dropped; they live on in the bus.
	s.records = s.records[len(pending):]
	return len(pending), nil
}

// Pending returns how many records await publication.
func (s *InMemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
