package codec

import (
	"fmt"
	"strings"
)

const (
	escapeChar = '$'
	hexDigits  = "0123456789abcdef"
)

// isSafe reports whether b belongs to the route alphabet.
func isSafe(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-', b == '_', b == '~', b == ':':
		return true
	}
	return false
}

func fromHex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// Escape rewrites every byte outside the route alphabet as '$' plus two
// lowercase hex digits.
func Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if isSafe(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte(escapeChar)
		sb.WriteByte(hexDigits[b>>4])
		sb.WriteByte(hexDigits[b&0x0f])
	}
	return sb.String()
}

// Unescape reverses Escape. It fails on characters outside the alphabet and on
// truncated or non-hex escape sequences.
func Unescape(s string) (string, error) {
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if isSafe(b) {
			buf = append(buf, b)
			continue
		}
		if b != escapeChar || i+2 >= len(s) {
			return "", &Error{Op: "unescape", Err: ErrDecode, Cause: errUnexpected(b, i)}
		}
		hi, ok1 := fromHex(s[i+1])
		lo, ok2 := fromHex(s[i+2])
		if !ok1 || !ok2 {
			return "", &Error{Op: "unescape", Err: ErrDecode, Cause: errBadEscape(s[i : i+3])}
		}
		buf = append(buf, hi<<4|lo)
		i += 2
	}
	return string(buf), nil
}

// Validate reports whether every character of uri is in the route alphabet or
// starts a well-formed '$xx' escape.
func Validate(uri string) bool {
	for i := 0; i < len(uri); i++ {
		b := uri[i]
		if isSafe(b) {
			continue
		}
		if b != escapeChar || i+2 >= len(uri) {
			return false
		}
		if _, ok := fromHex(uri[i+1]); !ok {
			return false
		}
		if _, ok := fromHex(uri[i+2]); !ok {
			return false
		}
		i += 2
	}
	return true
}

func errUnexpected(b byte, pos int) error {
	return fmt.Errorf("unexpected byte %q at offset %d", b, pos)
}

func errBadEscape(seq string) error {
	return fmt.Errorf("malformed escape %q", seq)
}
