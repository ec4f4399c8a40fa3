package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"talentflow/internal/candidate/models"
	"talentflow/internal/events"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/sentinel"
)

// TxStores are the stores visible inside a transaction.
type TxStores struct {
	Candidates CandidateStore
	History    HistoryStore
	Outbox     EventOutbox
}

// TxRunner provides the transactional boundary for a transition. fn must use
// the ctx it is given; postgres runners bind the sql.Tx to it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}

// defaultTxTimeout bounds transactions whose caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// MemoryCommitter applies a staged transition atomically.
type MemoryCommitter interface {
	CandidateStore
	HistoryStore
	CommitTransition(ctx context.Context, next *models.Candidate, expectedVersion int64, transitions []*models.StateTransition, enqueue func() error) error
}

// MemoryOutbox stores a transaction's events all at once or not at all.
type MemoryOutbox interface {
	EnqueueAll(ctx context.Context, evts ...events.Event) error
}

// memoryTx stages every write and applies them only after fn returned nil and
// the context is still live, so a failure at any step leaves nothing behind.
type memoryTx struct {
	mu      sync.Mutex
	store   MemoryCommitter
	outbox  MemoryOutbox
	timeout time.Duration
}

// NewMemoryTx returns a TxRunner over in-memory stores. Transactions are
// serialized, which makes the staged CAS check authoritative.
func NewMemoryTx(store MemoryCommitter, outbox MemoryOutbox) TxRunner {
	return &memoryTx{store: store, outbox: outbox, timeout: defaultTxTimeout}
}

func (t *memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	unit := &stagedUnit{base: t.store}
	if err := fn(ctx, TxStores{
		Candidates: (*stagedCandidates)(unit),
		History:    (*stagedHistory)(unit),
		Outbox:     (*stagedOutbox)(unit),
	}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}

	var enqueue func() error
	if len(unit.events) > 0 {
		enqueue = func() error { return t.outbox.EnqueueAll(ctx, unit.events...) }
	}
	if unit.next == nil {
		if len(unit.transitions) > 0 {
			return fmt.Errorf("history append without candidate update: %w", sentinel.ErrConflict)
		}
		if enqueue != nil {
			return enqueue()
		}
		return nil
	}
	// The outbox write happens inside the commit, after the version check and
	// before the candidate changes, so either both land or neither does.
	return t.store.CommitTransition(ctx, unit.next, unit.expectedVersion, unit.transitions, enqueue)
}

type stagedUnit struct {
	base            MemoryCommitter
	next            *models.Candidate
	expectedVersion int64
	transitions     []*models.StateTransition
	events          []events.Event
}

type stagedCandidates stagedUnit

func (s *stagedCandidates) FindByID(ctx context.Context, org domain.OrganizationID, id domain.CandidateID) (*models.Candidate, error) {
	if s.next != nil && s.next.ID == id && s.next.OrganizationID == org {
		c := *s.next
		return &c, nil
	}
	return s.base.FindByID(ctx, org, id)
}

func (s *stagedCandidates) CompareAndSwap(ctx context.Context, next *models.Candidate, expectedVersion int64) error {
	current, err := s.base.FindByID(ctx, next.OrganizationID, next.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("candidate %s at version %d, expected %d: %w", next.ID, current.Version, expectedVersion, sentinel.ErrConflict)
	}
	c := *next
	s.next = &c
	s.expectedVersion = expectedVersion
	return nil
}

type stagedHistory stagedUnit

func (s *stagedHistory) Append(_ context.Context, t *models.StateTransition) error {
	rec := *t
	s.transitions = append(s.transitions, &rec)
	return nil
}

func (s *stagedHistory) ListByCandidate(ctx context.Context, org domain.OrganizationID, id domain.CandidateID) ([]*models.StateTransition, error) {
	return s.base.ListByCandidate(ctx, org, id)
}

type stagedOutbox stagedUnit

func (s *stagedOutbox) Enqueue(_ context.Context, evt events.Event) error {
	s.events = append(s.events, evt)
	return nil
}
