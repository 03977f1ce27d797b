package route

import (
	"strings"

	"github.com/GriffinCanCode/routeproxy/internal/codec"
)

// ResourceType names the handler a route is dispatched to.
type ResourceType string

const (
	JS       ResourceType = "js"
	Module   ResourceType = "mjs"
	CSS      ResourceType = "css"
	HTML     ResourceType = "html"
	Manifest ResourceType = "manifest"
	Binary   ResourceType = "binary"
	XHR      ResourceType = "xhr"
)

// ResourceTypes lists every routable resource type.
var ResourceTypes = []ResourceType{JS, Module, CSS, HTML, Manifest, Binary, XHR}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

var routableSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// Routable reports whether a can be expressed as a route.
func Routable(a *Address) bool {
	return routableSchemes[a.Scheme()]
}

// ToRoute renders "{base}{type}/{encoded address}{fragment}".
func ToRoute(t ResourceType, a *Address) (string, error) {
	if !Routable(a) {
		return "", &Error{Input: a.String(), Err: ErrUnsupportedScheme}
	}
	encoded, err := a.Encode()
	if err != nil {
		return "", err
	}
	return a.Base() + string(t) + "/" + encoded, nil
}

// FromRoute maps a routed path back to its resource type and address. The
// path must start with base; anything after the first '#' is the fragment.
func FromRoute(path string, c *codec.Codec, base string) (ResourceType, *Address, error) {
	base = NormalizeBase(base)
	if !strings.HasPrefix(path, base) {
		return "", nil, &Error{Input: path, Err: ErrInvalidRoute}
	}

	rest := strings.TrimPrefix(path, base)
	kind, encoded, ok := strings.Cut(rest, "/")
	if !ok || kind == "" {
		return "", nil, &Error{Input: path, Err: ErrInvalidRoute}
	}
	t := ResourceType(kind)
	if !t.Valid() {
		return "", nil, &Error{Input: path, Err: ErrInvalidRoute}
	}

	encoded, fragment, hasFragment := strings.Cut(encoded, "#")
	if !codec.Validate(encoded) {
		return "", nil, &Error{Input: path, Err: ErrInvalidRoute}
	}

	decoded, err := c.Decode(encoded)
	if err != nil {
		return "", nil, &Error{Input: path, Err: ErrInvalidRoute, Cause: err}
	}
	if hasFragment {
		decoded += "#" + fragment
	}

	a, err := NewAddress(decoded, c, base)
	if err != nil {
		return "", nil, &Error{Input: path, Err: ErrInvalidRoute, Cause: err}
	}
	return t, a, nil
}
