package workflow

import (
	"errors"
	"fmt"
)

// State is a scheduler state.
type State string

const (
	StateIdle      State = "idle"
	StateDraining  State = "draining"
	StateReporting State = "reporting_pipeline"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// ErrInvalidTransition reports a state change the scheduler does not allow.
var ErrInvalidTransition = errors.New("invalid scheduler transition")

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

func allowedTransition(from, to State) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}
	switch from {
	case StateIdle:
		// Draining is skipped when no task pipeline is usable.
		return to == StateDraining || to == StateReporting
	case StateDraining:
		return to == StateReporting
	case StateReporting:
		return to == StateDone
	default:
		return false
	}
}

func checkTransition(from, to State) error {
	if !allowedTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
