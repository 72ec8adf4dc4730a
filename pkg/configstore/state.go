package configstore

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a configuration revision.
type State string

const (
	// StateCandidate marks a proposed revision that is not yet deployed.
	StateCandidate State = "CANDIDATE"

	// StateActive marks the revision currently deployed on the element.
	StateActive State = "ACTIVE"

	// StateSuperseded marks a historical revision kept for audit and restore.
	StateSuperseded State = "SUPERSEDED"
)

// States lists every known state in lifecycle order.
var States = []State{StateCandidate, StateActive, StateSuperseded}

// ParseState converts a case-insensitive state name.
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown state %q", ErrInvalidArgument, s)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateCandidate, StateActive, StateSuperseded:
		return true
	default:
		return false
	}
}

// Live reports whether revisions in this state are still in force or pending.
func (s State) Live() bool {
	return s == StateCandidate || s == StateActive
}

func (s State) String() string {
	return string(s)
}
