package route

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedScheme indicates an address whose scheme cannot be routed.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrInvalidRoute indicates a routed path that cannot be mapped back to an
	// address.
	ErrInvalidRoute = errors.New("invalid route")

	// ErrInvalidAddress indicates a string that does not parse as a URL.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidDataURL indicates a malformed data: URL.
	ErrInvalidDataURL = errors.New("invalid data url")
)

// Error carries the offending input alongside a sentinel.
type Error struct {
	Input string
	Err   error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %q: %v", e.Err.Error(), e.Input, e.Cause)
	}
	return fmt.Sprintf("%s %q", e.Err.Error(), e.Input)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}
