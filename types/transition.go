package types

import (
	"errors"
	"fmt"
)

// ErrInvalidStateTransition is matched by every TransitionError.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// TransitionError reports a workflow transition attempted from a state that
// does not allow it.
type TransitionError struct {
	Workflow string
	From     string
	To       string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %v from %q to %q", e.Workflow, ErrInvalidStateTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// InvalidTransition builds a TransitionError.
func InvalidTransition[S ~string](workflow string, from, to S) error {
	return &TransitionError{Workflow: workflow, From: string(from), To: string(to)}
}
