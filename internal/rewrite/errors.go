package rewrite

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/routeproxy/internal/route"
)

var (
	// ErrParse wraps every failure of the underlying HTML, CSS, JS or JSON
	// parser. The parser's own error stays in the chain.
	ErrParse = errors.New("parse error")

	// ErrUnsupportedType is returned for resource types that carry no
	// rewritable text.
	ErrUnsupportedType = errors.New("unsupported resource type")
)

// ParseError reports which rewriter rejected its payload.
type ParseError struct {
	Type route.ResourceType
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Type, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}
