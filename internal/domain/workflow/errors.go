package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a lifecycle transition is not
	// allowed from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not a known lifecycle
	// state.
	ErrInvalidState = errors.New("invalid state")
)
