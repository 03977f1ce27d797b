package route

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// DataURL is a parsed "data:<mime>[;attr]*,<payload>" URL. Payload holds the
// decoded bytes; Attrs preserves every attribute other than base64 in order.
type DataURL struct {
	MIME    string
	Attrs   []string
	Base64  bool
	Payload []byte
}

// IsDataURL reports whether raw uses the data: scheme.
func IsDataURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return len(raw) >= 5 && strings.EqualFold(raw[:5], "data:")
}

// ParseDataURL splits raw into its media type, attributes and payload.
func ParseDataURL(raw string) (*DataURL, error) {
	trimmed := strings.TrimSpace(raw)
	if !IsDataURL(trimmed) {
		return nil, &Error{Input: raw, Err: ErrInvalidDataURL}
	}

	header, payload, ok := strings.Cut(trimmed[5:], ",")
	if !ok {
		return nil, &Error{Input: raw, Err: ErrInvalidDataURL}
	}

	d := &DataURL{}
	parts := strings.Split(header, ";")
	d.MIME = strings.TrimSpace(parts[0])
	for _, attr := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(attr), "base64") {
			d.Base64 = true
			continue
		}
		d.Attrs = append(d.Attrs, attr)
	}

	if d.Base64 {
		// Tolerate whitespace and percent-encoding that often wraps inline base64.
		clean, err := url.PathUnescape(payload)
		if err != nil {
			clean = payload
		}
		clean = strings.Join(strings.Fields(clean), "")
		decoded, err := base64.StdEncoding.DecodeString(clean)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
			if err != nil {
				return nil, &Error{Input: raw, Err: ErrInvalidDataURL, Cause: err}
			}
		}
		d.Payload = decoded
		return d, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		// Unescaped '%' is common in inline SVG; keep the payload verbatim.
		decoded = payload
	}
	d.Payload = []byte(decoded)
	return d, nil
}

// MediaType returns the lowercased MIME type, defaulting to text/plain.
func (d *DataURL) MediaType() string {
	if d.MIME == "" {
		return "text/plain"
	}
	return strings.ToLower(d.MIME)
}

// String re-embeds the payload with the same media type and attributes.
func (d *DataURL) String() string {
	var sb strings.Builder
	sb.WriteString("data:")
	sb.WriteString(d.MIME)
	for _, attr := range d.Attrs {
		sb.WriteByte(';')
		sb.WriteString(attr)
	}
	if d.Base64 {
		sb.WriteString(";base64,")
		sb.WriteString(base64.StdEncoding.EncodeToString(d.Payload))
		return sb.String()
	}
	sb.WriteByte(',')
	sb.WriteString(escapeDataPayload(string(d.Payload)))
	return sb.String()
}

// escapeDataPayload percent-encodes only what would break the URL or the
// attribute it is embedded in.
func escapeDataPayload(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%', '#', '"', '\'', '<', '>', '\n', '\r', '\t', '(', ')':
			sb.WriteByte('%')
			sb.WriteByte("0123456789ABCDEF"[c>>4])
			sb.WriteByte("0123456789ABCDEF"[c&0x0f])
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
