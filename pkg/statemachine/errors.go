package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition    = errors.New("no transition declared")
	ErrRejected        = errors.New("transition rejected by guards")
	ErrUnreachableRule = errors.New("rule follows an unguarded rule for the same state and event")
)

// TransitionError tells which state and event failed. Err is ErrNoTransition,
// ErrRejected or the error of a failing action.
type TransitionError struct {
	From  string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s on %q from %q", e.Err, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return e.Err }
