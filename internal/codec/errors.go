package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic error handling.
var (
	// ErrDecode indicates the input is not valid wire text or the inverse
	// transform failed.
	ErrDecode = errors.New("decode failed")

	// ErrEncode indicates the forward transform failed.
	ErrEncode = errors.New("encode failed")

	// ErrInvalidKey indicates a key has the wrong format for its variant.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnknownKind indicates an unrecognised variant name or value.
	ErrUnknownKind = errors.New("unknown codec kind")
)

// Error wraps a sentinel error with the operation and variant that produced it.
type Error struct {
	Op    string // encode, decode, unescape, key
	Kind  Kind
	Err   error // Underlying sentinel error
	Cause error // Original error from the cipher or parser, if any
}

func (e *Error) Error() string {
	prefix := "codec " + e.Op
	if e.Kind != "" {
		prefix += " (" + string(e.Kind) + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Err.Error(), e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Err.Error())
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}
