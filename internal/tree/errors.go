package tree

import (
	"errors"
	"fmt"
)

// ErrInvalidOperation indicates an edit on a root or already-detached context.
// It always means the caller's view of the tree has diverged from the walker.
var ErrInvalidOperation = errors.New("invalid tree operation")

// OperationError describes a rejected edit.
type OperationError struct {
	Op     string // detach, replace
	Kind   string // node kind of the context
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Kind, ErrInvalidOperation.Error(), e.Reason)
}

func (e *OperationError) Unwrap() error { return ErrInvalidOperation }
