// Package engine implements the overdrive timing engine: it fires a key press
// and an audio cue at each chart offset, measured from a start signal.
package engine

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of the engine.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRunning
	StateDraining
	StateCompleted
	StateCancelled
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateArmed:
		return "Armed"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateCompleted:
		return "Completed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition happens without a new Arm.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Active reports whether a run owns the engine (Running or Draining).
func (s State) Active() bool {
	return s == StateRunning || s == StateDraining
}

// ErrStateConflict is wrapped by every error returned for a call made from the wrong state.
var ErrStateConflict = errors.New("engine: state conflict")

// ErrRunReplaced is returned by StartRun when another run has been armed since.
var ErrRunReplaced = errors.New("engine: run was replaced")

// StateError describes a rejected control call.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("engine: cannot %s while %s", e.Op, e.State)
}

// Unwrap makes errors.Is(err, ErrStateConflict) hold.
func (e *StateError) Unwrap() error {
	return ErrStateConflict
}
