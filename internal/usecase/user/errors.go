package user

import "errors"

var (
	// ErrWorkflow matches any failure of an external collaborator during a user workflow.
	ErrWorkflow = errors.New("workflow failure")
	// ErrInvalidInput is returned when a request fails validation before any side effect.
	ErrInvalidInput = errors.New("invalid input")
)

// WorkflowError wraps a collaborator failure with the workflow step that hit it.
// errors.Is matches both ErrWorkflow and the wrapped error.
type WorkflowError struct {
	Op  string
	Err error
}

func (e *WorkflowError) Error() string {
	return e.Op + " failed: " + e.Err.Error()
}

func (e *WorkflowError) Unwrap() error { return e.Err }

func (e *WorkflowError) Is(target error) bool { return target == ErrWorkflow }

func workflowError(op string, err error) error {
	return &WorkflowError{Op: op, Err: err}
}
