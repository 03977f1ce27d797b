package route

import (
	"net/url"
	"strings"

	"github.com/GriffinCanCode/routeproxy/internal/codec"
)

// Address is a parsed URL bound to a codec and the base directory its routes
// live under. It is immutable once constructed.
type Address struct {
	url   *url.URL
	codec *codec.Codec
	base  string
}

// NormalizeBase makes sure base starts and ends with a slash.
func NormalizeBase(base string) string {
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// NewAddress parses raw and binds it to c and base.
func NewAddress(raw string, c *codec.Codec, base string) (*Address, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &Error{Input: raw, Err: ErrInvalidAddress, Cause: err}
	}
	return &Address{url: u, codec: c, base: NormalizeBase(base)}, nil
}

// URL returns a copy of the underlying URL.
func (a *Address) URL() *url.URL {
	u := *a.url
	if a.url.User != nil {
		user := *a.url.User
		u.User = &user
	}
	return &u
}

// String returns the full URL including any fragment.
func (a *Address) String() string { return a.url.String() }

// Codec returns the bound codec.
func (a *Address) Codec() *codec.Codec { return a.codec }

// Base returns the base directory, always slash-delimited.
func (a *Address) Base() string { return a.base }

// Scheme returns the lowercased URL scheme.
func (a *Address) Scheme() string { return strings.ToLower(a.url.Scheme) }

// IsData reports whether the address is a data: URL.
func (a *Address) IsData() bool { return a.Scheme() == "data" }

// Fragment returns the "#..." suffix, or "" when the URL has none.
func (a *Address) Fragment() string {
	if a.url.Fragment == "" && a.url.RawFragment == "" {
		return ""
	}
	return "#" + a.url.EscapedFragment()
}

// withoutFragment renders origin, path and query only.
func (a *Address) withoutFragment() string {
	u := a.URL()
	u.Fragment = ""
	u.RawFragment = ""
	return strings.TrimSuffix(u.String(), "#")
}

// Encode obfuscates origin, path and query with the bound codec and appends
// the fragment unencoded.
func (a *Address) Encode() (string, error) {
	encoded, err := a.codec.Encode(a.withoutFragment())
	if err != nil {
		return "", err
	}
	return encoded + a.Fragment(), nil
}

// Resolve parses ref relative to a and returns a new Address sharing a's codec
// and base.
func (a *Address) Resolve(ref string) (*Address, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, &Error{Input: ref, Err: ErrInvalidAddress, Cause: err}
	}
	return &Address{url: a.url.ResolveReference(parsed), codec: a.codec, base: a.base}, nil
}

// Equal reports whether both addresses render to the same URL.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.String() == other.String()
}
