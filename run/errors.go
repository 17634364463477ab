package run

import "fmt"

// ActionError wraps an action failure with its retry classification.
// Transient failures reschedule the queue item; permanent failures kill it.
type ActionError struct {
	ActionType string
	Index      int
	Transient  bool
	Err        error
}

func (e *ActionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("action %d (%s): %s: %v", e.Index, e.ActionType, kind, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// transient wraps err as a retryable action failure.
func transient(actionType string, index int, err error) *ActionError {
	return &ActionError{ActionType: actionType, Index: index, Transient: true, Err: err}
}

// permanent wraps err as a non-retryable action failure.
func permanent(actionType string, index int, err error) *ActionError {
	return &ActionError{ActionType: actionType, Index: index, Transient: false, Err: err}
}
