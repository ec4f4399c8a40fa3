package models

import (
	"fmt"
	"time"

	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

// Candidate is the mutable aggregate. State changes only through
// compare-and-swap on Version.
type Candidate struct {
	ID                domain.CandidateID
	OrganizationID    domain.OrganizationID
	FullName          string
	State             State
	Version           int64
	AssignedManagerID domain.UserID
	PortalUserID      domain.UserID
	StateChangedAt    time.Time
}

// NewCandidate builds a candidate at the initial state, version 1.
func NewCandidate(id domain.CandidateID, org domain.OrganizationID, fullName string, createdAt time.Time) (*Candidate, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "candidate id required")
	}
	if org.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization id required")
	}
	return &Candidate{
		ID:             id,
		OrganizationID: org,
		FullName:       fullName,
		State:          InitialState,
		Version:        1,
		StateChangedAt: createdAt.UTC(),
	}, nil
}

// Advance returns the successor snapshot after moving to next at changedAt.
// It does not validate the edge.
func (c Candidate) Advance(next State, changedAt time.Time) *Candidate {
	c.State = next
	c.Version++
	c.StateChangedAt = changedAt
	return &c
}

// StateTransition is one write-once audit record.
type StateTransition struct {
	CandidateID    domain.CandidateID
	OrganizationID domain.OrganizationID
	PreviousState  State
	NewState       State
	ChangedBy      domain.UserID
	ChangedByName  string
	Comment        string
	ChangedAt      time.Time
}

// ValidateChain checks that history links end to end, starts at the initial
// state, moves strictly forward in time, and ends at the candidate's state.
func ValidateChain(c *Candidate, history []*StateTransition) error {
	if len(history) == 0 {
		if c.State != InitialState {
			return fmt.Errorf("candidate %s is %s with empty history", c.ID, c.State)
		}
		return nil
	}
	if history[0].PreviousState != InitialState {
		return fmt.Errorf("history starts at %s, want %s", history[0].PreviousState, InitialState)
	}
	for i := 0; i+1 < len(history); i++ {
		if history[i].NewState != history[i+1].PreviousState {
			return fmt.Errorf("history broken at %d: %s then %s", i, history[i].NewState, history[i+1].PreviousState)
		}
		if !history[i+1].ChangedAt.After(history[i].ChangedAt) {
			return fmt.Errorf("history not strictly ordered at %d", i+1)
		}
	}
	if last := history[len(history)-1]; last.NewState != c.State {
		return fmt.Errorf("candidate is %s but history ends at %s", c.State, last.NewState)
	}
	return nil
}
