// Package store persists candidates and their write-once transition history.
package store

import (
	"context"
	"fmt"
	"sync"

	"talentflow/internal/candidate/models"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
)

type key struct {
	org domain.OrganizationID
	id  domain.CandidateID
}

// InMemoryStore keeps candidates and history behind one lock so a transition
// commit is atomic.
type InMemoryStore struct {
	mu         sync.RWMutex
	candidates map[key]*models.Candidate
	history    map[key][]*models.StateTransition
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		candidates: make(map[key]*models.Candidate),
		history:    make(map[key][]*models.StateTransition),
	}
}

// Create inserts a new candidate. Candidate CRUD is owned elsewhere; this
// serves seed data and tests.
func (s *InMemoryStore) Create(_ context.Context, c *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{c.OrganizationID, c.ID}
	if _, exists := s.candidates[k]; exists {
		return fmt.Errorf("candidate %s: %w", c.ID, sentinel.ErrDuplicate)
	}
	cp := *c
	s.candidates[k] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, org domain.OrganizationID, id domain.CandidateID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[key{org, id}]
	if !ok {
		return nil, fmt.Errorf("candidate %s: %w", id, sentinel.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) CompareAndSwap(_ context.Context, next *models.Candidate, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(next, expectedVersion)
}

func (s *InMemoryStore) swapLocked(next *models.Candidate, expectedVersion int64) error {
	if err := s.checkVersionLocked(next, expectedVersion); err != nil {
		return err
	}
	cp := *next
	s.candidates[key{next.OrganizationID, next.ID}] = &cp
	return nil
}

func (s *InMemoryStore) checkVersionLocked(next *models.Candidate, expectedVersion int64) error {
	current, ok := s.candidates[key{next.OrganizationID, next.ID}]
	if !ok {
		return fmt.Errorf("candidate %s: %w", next.ID, sentinel.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("candidate %s at version %d, expected %d: %w", next.ID, current.Version, expectedVersion, sentinel.ErrConflict)
	}
	return nil
}

func (s *InMemoryStore) Append(_ context.Context, t *models.StateTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(t)
	return nil
}

func (s *InMemoryStore) appendLocked(t *models.StateTransition) {
	k := key{t.OrganizationID, t.CandidateID}
	rec := *t
	s.history[k] = append(s.history[k], &rec)
}

// ListByCandidate returns copies, oldest first.
func (s *InMemoryStore) ListByCandidate(_ context.Context, org domain.OrganizationID, id domain.CandidateID) ([]*models.StateTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.history[key{org, id}]
	out := make([]*models.StateTransition, len(records))
	for i, r := range records {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// CommitTransition swaps the candidate and appends its history under one lock.
// enqueue runs after the version check and before any write; when it fails
// nothing is applied. It may be nil.
func (s *InMemoryStore) CommitTransition(_ context.Context, next *models.Candidate, expectedVersion int64, transitions []*models.StateTransition, enqueue func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(next, expectedVersion); err != nil {
		return err
	}
	if enqueue != nil {
		if err := enqueue(); err != nil {
			return err
		}
	}
	if err := s.swapLocked(next, expectedVersion); err != nil {
		return err
	}
	for _, t := range transitions {
		s.appendLocked(t)
	}
	return nil
}
