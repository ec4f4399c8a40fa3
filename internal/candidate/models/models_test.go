package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "talentflow/pkg/domain-errors"
)

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for _, s := range []State{StateAccepted, StateRejected, StateWithdrawn} {
		assert.True(t, s.IsTerminal(), s)
		assert.Empty(t, AllowedTransitions(s), s)
		for _, to := range AllStates() {
			assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
		}
	}
}

func TestGraphEdges(t *testing.T) {
	assert.ElementsMatch(t, []State{StatePrescreened, StateRejected, StateWithdrawn}, AllowedTransitions(StateNew))
	assert.True(t, CanTransition(StateInterviewing, StateInterviewScheduled), "additional interview round")
	assert.False(t, CanTransition(StatePrescreened, StateInterviewing))
	assert.False(t, CanTransition(StateNew, StateAccepted))
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := AllowedTransitions(StateNew)
	next[0] = StateAccepted
	assert.Equal(t, StatePrescreened, AllowedTransitions(StateNew)[0])
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name     string
		from, to State
		wantErr  string
	}{
		{"allowed", StateNew, StatePrescreened, ""},
		{"same state", StatePrescreened, StatePrescreened, "already"},
		{"missing edge", StatePrescreened, StateInterviewing, "not allowed"},
		{"terminal exit", StateAccepted, StateNew, "terminal"},
		{"unknown target", StateNew, State("HIRED"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState(" interview_scheduled ")
	require.NoError(t, err)
	assert.Equal(t, StateInterviewScheduled, s)

	_, err = ParseState("HIRED")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateChain(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := NewCandidate("42", "acme", "Ada", t0)
	require.NoError(t, err)
	require.NoError(t, ValidateChain(c, nil))

	history := []*StateTransition{
		{PreviousState: StateNew, NewState: StatePrescreened, ChangedAt: t0.Add(time.Minute)},
		{PreviousState: StatePrescreened, NewState: StateInterviewScheduled, ChangedAt: t0.Add(2 * time.Minute)},
	}
	c.State = StateInterviewScheduled
	assert.NoError(t, ValidateChain(c, history))

	c.State = StateInterviewing
	assert.Error(t, ValidateChain(c, history), "candidate state must equal last newState")

	c.State = StateInterviewScheduled
	history[1].PreviousState = StateNew
	assert.Error(t, ValidateChain(c, history), "broken link")
}

func TestNewCandidateInvariants(t *testing.T) {
	_, err := NewCandidate("", "acme", "x", time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	c, err := NewCandidate("42", "acme", "x", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StateNew, c.State)
	assert.Equal(t, int64(1), c.Version)

	next := c.Advance(StatePrescreened, time.Now())
	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, StateNew, c.State, "Advance does not mutate the receiver")
}
