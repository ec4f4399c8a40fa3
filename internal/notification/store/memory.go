// Package store persists notifications with insert-if-absent semantics on
// the idempotency key.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"talentflow/internal/notification/models"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[domain.NotificationID]*models.Notification
	byKey    map[string]domain.NotificationID
	receipts map[domain.NotificationID]map[domain.UserID]time.Time
	order    []domain.NotificationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[domain.NotificationID]*models.Notification),
		byKey:    make(map[string]domain.NotificationID),
		receipts: make(map[domain.NotificationID]map[domain.UserID]time.Time),
	}
}

// InsertBatch stores every notification whose idempotency key is new and
// returns only those. The batch is applied under one lock.
func (s *InMemoryStore) InsertBatch(ctx context.Context, batch []*models.Notification) ([]*models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := make([]*models.Notification, 0, len(batch))
	for _, n := range batch {
		if _, exists := s.byKey[n.IdempotencyKey]; exists {
			continue
		}
		stored := n.ForViewer(false)
		s.byID[n.ID] = stored
		s.byKey[n.IdempotencyKey] = n.ID
		s.order = append(s.order, n.ID)
		inserted = append(inserted, n)
	}
	return inserted, nil
}

// List returns what viewer sees, newest first unless f.OldestFirst.
func (s *InMemoryStore) List(_ context.Context, v models.Viewer, f models.ListFilter) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Notification
	for _, id := range s.order {
		n := s.byID[id]
		if !n.VisibleTo(v.OrganizationID, v.UserID, v.Role) {
			continue
		}
		read := s.readLocked(n, v.UserID)
		if f.UnreadOnly && read {
			continue
		}
		if f.After != nil && !pastCursor(*f.After, n, f.OldestFirst) {
			continue
		}
		out = append(out, n.ForViewer(read))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.OldestFirst {
			a, b = b, a
		}
		return models.CursorOf(b).Before(a)
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// pastCursor reports whether n comes after c in the listing direction.
func pastCursor(c models.Cursor, n *models.Notification, oldestFirst bool) bool {
	if oldestFirst {
		return c.Before(n)
	}
	same := c.CreatedAt.Equal(n.CreatedAt) && c.ID == n.ID
	return !same && !c.Before(n)
}

// MarkRead is idempotent. Invisible rows are reported as not found.
func (s *InMemoryStore) MarkRead(_ context.Context, v models.Viewer, id domain.NotificationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok || !n.VisibleTo(v.OrganizationID, v.UserID, v.Role) {
		return fmt.Errorf("notification %s: %w", id, sentinel.ErrNotFound)
	}
	s.markLocked(n, v.UserID, at)
	return nil
}

func (s *InMemoryStore) MarkAllRead(_ context.Context, v models.Viewer, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for _, id := range s.order {
		n := s.byID[id]
		if !n.VisibleTo(v.OrganizationID, v.UserID, v.Role) || s.readLocked(n, v.UserID) {
			continue
		}
		s.markLocked(n, v.UserID, at)
		updated++
	}
	return updated, nil
}

func (s *InMemoryStore) readLocked(n *models.Notification, user domain.UserID) bool {
	if !n.IsBroadcast() {
		return n.Read
	}
	_, ok := s.receipts[n.ID][user]
	return ok
}

func (s *InMemoryStore) markLocked(n *models.Notification, user domain.UserID, at time.Time) {
	if !n.IsBroadcast() {
		n.Read = true
		return
	}
	r, ok := s.receipts[n.ID]
	if !ok {
		r = make(map[domain.UserID]time.Time)
		s.receipts[n.ID] = r
	}
	if _, seen := r[user]; !seen {
		r[user] = at
	}
}
