package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/routeproxy/internal/rewrite"
	"github.com/GriffinCanCode/routeproxy/internal/route"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errBadEncoding  = errors.New("unsupported content encoding")
	errBadCharset   = errors.New("unsupported charset")
)

// minGzipResponse is the smallest response worth compressing.
const minGzipResponse = 1024

// readBody reads the request payload and undoes a gzip Content-Encoding.
// limit applies to both the wire and the decoded size.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	var src io.Reader = http.MaxBytesReader(w, r.Body, limit)

	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadEncoding, err)
		}
		defer zr.Close()
		src = zr
	default:
		return nil, fmt.Errorf("%w: %s", errBadEncoding, enc)
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		if errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", errBadEncoding, err)
		}
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeText returns data as UTF-8. The charset comes from the Content-Type
// parameter. Failing that, HTML follows the browser sniffing rules and
// anything else is guessed by chardet when it is not already valid UTF-8.
func decodeText(data []byte, contentType string, t route.ResourceType) (string, error) {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" && t == route.HTML {
		_, label, _ = charset.DetermineEncoding(data, contentType)
	}
	if label == "" {
		if utf8.Valid(data) {
			return string(data), nil
		}
		if res, err := chardet.NewTextDetector().DetectBest(data); err == nil {
			label = res.Charset
		}
	}
	if label == "" || isUTF8(label) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s", errBadCharset, label)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadCharset, err)
	}
	return string(out), nil
}

func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8", "unicode-1-1-utf-8":
		return true
	}
	return false
}

// detectType resolves type=auto: the declared Content-Type first, then a
// sniff of the payload.
func detectType(contentType string, data []byte) (route.ResourceType, bool) {
	if t, ok := rewrite.TypeForMIME(contentType); ok {
		return t, true
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if t, ok := rewrite.TypeForMIME(m.String()); ok {
			return t, true
		}
	}
	return "", false
}


// contentTypeFor is the response Content-Type for a rewritten payload.
func contentTypeFor(t route.ResourceType) string {
	switch t {
	case route.HTML:
		return "text/html; charset=utf-8"
	case route.CSS:
		return "text/css; charset=utf-8"
	case route.Manifest:
		return "application/manifest+json; charset=utf-8"
	default:
		return "text/javascript; charset=utf-8"
	}
}

// sanitizers maps the sanitize query value to an HTML policy applied before
// rewriting.
var sanitizers = map[string]func() *bluemonday.Policy{
	"ugc":    bluemonday.UGCPolicy,
	"strict": bluemonday.StrictPolicy,
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(name), "gzip") {
			return true
		}
	}
	return false
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
