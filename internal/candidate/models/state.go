package models

import (
	"fmt"
	"strings"

	dErrors "talentflow/pkg/domain-errors"
)

// State is a step of the recruitment pipeline.
type State string

const (
	StateNew                State = "NEW"
	StatePrescreened        State = "PRESCREENED"
	StateInterviewScheduled State = "INTERVIEW_SCHEDULED"
	StateInterviewing       State = "INTERVIEWING"
	StateAccepted           State = "ACCEPTED"
	StateRejected           State = "REJECTED"
	StateWithdrawn          State = "WITHDRAWN"
)

// InitialState is where every candidate starts and where an empty history
// leaves it.
const InitialState = StateNew

// transitions is the complete directed graph. INTERVIEWING -> INTERVIEW_SCHEDULED
// models an additional interview round. Terminal states have no entry.
var transitions = map[State][]State{
	StateNew:                {StatePrescreened, StateRejected, StateWithdrawn},
	StatePrescreened:        {StateInterviewScheduled, StateRejected, StateWithdrawn},
	StateInterviewScheduled: {StateInterviewing, StateRejected, StateWithdrawn},
	StateInterviewing:       {StateInterviewScheduled, StateAccepted, StateRejected, StateWithdrawn},
}

var allStates = []State{
	StateNew, StatePrescreened, StateInterviewScheduled, StateInterviewing,
	StateAccepted, StateRejected, StateWithdrawn,
}

// AllStates lists every state in pipeline order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState accepts any case; unknown names are a validation error.
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown candidate state %q", s))
	}
	return st, nil
}

// IsValid reports whether s is a defined state.
func (s State) IsValid() bool {
	for _, known := range allStates {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing edges.
func (s State) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

func (s State) String() string { return string(s) }

// AllowedTransitions returns the successors of s, empty for terminal or
// unknown states.
func AllowedTransitions(s State) []State {
	next := transitions[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition explains why from -> to is rejected, or returns nil.
func ValidateTransition(from, to State) error {
	switch {
	case !to.IsValid():
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown candidate state %q", to))
	case from == to:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("candidate is already %s", from))
	case from.IsTerminal():
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s is terminal: no further transitions", from))
	case !CanTransition(from, to):
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("transition %s -> %s is not allowed", from, to))
	}
	return nil
}
