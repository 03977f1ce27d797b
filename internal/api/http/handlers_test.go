package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/routeproxy/internal/codec"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/routeproxy/internal/rewrite"
	"github.com/GriffinCanCode/routeproxy/internal/route"
)

const testBase = "/route/"

var testCodec = codec.MustNew(codec.Plain, "")

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	metrics *monitoring.Metrics
}

func newTestServer(t *testing.T, maxBody int64) *testServer {
	t.Helper()
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("test", zap.NewNop())
	t.Cleanup(tracer.Close)

	h := NewHandlers(Options{
		Engine:       rewrite.New(rewrite.WithObserver(metrics)),
		Codec:        testCodec,
		Base:         testBase,
		Metrics:      metrics,
		Tracer:       tracer,
		MaxBodyBytes: maxBody,
	})
	r := gin.New()
	h.Register(r)
	return &testServer{router: r, metrics: metrics}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func rewriteRequest(typ, page, contentType string, body io.Reader) *http.Request {
	target := "/v1/rewrite/" + typ
	if page != "" {
		target += "?url=" + url.QueryEscape(page)
	}
	req := httptest.NewRequest(http.MethodPost, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func routeFor(t *testing.T, typ route.ResourceType, abs string) string {
	t.Helper()
	a, err := route.NewAddress(abs, testCodec, testBase)
	require.NoError(t, err)
	r, err := route.ToRoute(typ, a)
	require.NoError(t, err)
	return r
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRewriteCSS(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(rewriteRequest("css", "http://example.com/a/site.css", "text/css", strings.NewReader(`a{b:url(x.png)}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, `a{b:url("`+routeFor(t, route.Binary, "http://example.com/a/x.png")+`")}`, w.Body.String())
	assert.Equal(t, "css", w.Header().Get(ResourceTypeHeader))
	assert.Equal(t, "text/css; charset=utf-8", w.Header().Get("Content-Type"))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.RewritesTotal.WithLabelValues("css", monitoring.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ReferencesRouted.WithLabelValues("binary")))
}

func TestRewriteRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{
			name: "unsupported type",
			req:  rewriteRequest("binary", "http://example.com/", "", strings.NewReader("x")),
			want: http.StatusBadRequest,
		},
		{
			name: "missing page",
			req:  rewriteRequest("css", "", "", strings.NewReader("a{}")),
			want: http.StatusBadRequest,
		},
		{
			name: "relative page",
			req:  rewriteRequest("css", "/a/site.css", "", strings.NewReader("a{}")),
			want: http.StatusBadRequest,
		},
		{
			name: "undetectable payload",
			req:  rewriteRequest("auto", "http://example.com/", "", bytes.NewReader([]byte{0x00, 0x01, 0x02, 0xff})),
			want: http.StatusUnsupportedMediaType,
		},
		{
			name: "sanitize outside html",
			req:  rewriteRequest("css", "http://example.com/", "", strings.NewReader("a{}")),
			want: http.StatusBadRequest,
		},
	}
	tests[4].req.URL.RawQuery += "&sanitize=ugc"

	s := newTestServer(t, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, false, decodeJSON(t, w)["success"])
		})
	}
}

func TestRewriteParseError(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(rewriteRequest("js", "http://example.com/", "text/javascript", strings.NewReader("var = ;")))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "js", body["type"])
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.RewritesTotal.WithLabelValues("js", monitoring.StatusParse)))
}

func TestRewriteModule(t *testing.T) {
	s := newTestServer(t, 0)

	src := "import x from \"./a.js\";\nexport default await import(\"./b.js\");\nlocation.href = x;"
	w := s.do(rewriteRequest("mjs", "http://example.com/app/", "text/javascript", strings.NewReader(src)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := w.Body.String()
	assert.Equal(t, "mjs", w.Header().Get(ResourceTypeHeader))
	assert.NotContains(t, out, `"./a.js"`)
	assert.NotContains(t, out, `"./b.js"`)
	assert.Contains(t, out, "\n__rw$.location.href = x;")
}

func TestRewriteAutoDetectsHTML(t *testing.T) {
	s := newTestServer(t, 0)
	page := `<!DOCTYPE html><html><head><title>x</title></head><body><a href="next.html">n</a></body></html>`

	w := s.do(rewriteRequest("auto", "http://example.com/dir/", "", strings.NewReader(page)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "html", w.Header().Get(ResourceTypeHeader))
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), routeFor(t, route.HTML, "http://example.com/dir/next.html"))
}

func TestRewriteAutoUsesContentType(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(rewriteRequest("auto", "http://example.com/", "application/manifest+json",
		strings.NewReader(`{"start_url": "/app"}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "manifest", w.Header().Get(ResourceTypeHeader))
	assert.Contains(t, w.Body.String(), routeFor(t, route.HTML, "http://example.com/app"))
}

func TestRewriteGzipBody(t *testing.T) {
	s := newTestServer(t, 0)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`@import "base.css";`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	req := rewriteRequest("css", "http://example.com/", "text/css", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `@import "`+routeFor(t, route.CSS, "http://example.com/base.css")+`";`, w.Body.String())

	bad := rewriteRequest("css", "http://example.com/", "text/css", strings.NewReader("not gzip"))
	bad.Header.Set("Content-Encoding", "gzip")
	assert.Equal(t, http.StatusUnsupportedMediaType, s.do(bad).Code)

	br := rewriteRequest("css", "http://example.com/", "text/css", strings.NewReader("a{}"))
	br.Header.Set("Content-Encoding", "br")
	assert.Equal(t, http.StatusUnsupportedMediaType, s.do(br).Code)
}

func TestRewriteGzipResponse(t *testing.T) {
	s := newTestServer(t, 0)
	css := strings.Repeat("a{b:url(x.png)}\n", 200)

	req := rewriteRequest("css", "http://example.com/", "text/css", strings.NewReader(css))
	req.Header.Set("Accept-Encoding", "br, gzip;q=0.8")
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(out), routeFor(t, route.Binary, "http://example.com/x.png"))
}

func TestRewriteBodyLimit(t *testing.T) {
	s := newTestServer(t, 16)

	w := s.do(rewriteRequest("css", "http://example.com/", "text/css", strings.NewReader(strings.Repeat("a", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = s.do(rewriteRequest("css", "http://example.com/", "text/css", strings.NewReader("a{}")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRewriteTranscodesCharset(t *testing.T) {
	s := newTestServer(t, 0)
	latin1 := []byte("a::before{content:\"caf\xe9\"}")

	w := s.do(rewriteRequest("css", "http://example.com/", "text/css; charset=iso-8859-1", bytes.NewReader(latin1)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "a::before{content:\"café\"}", w.Body.String())
}

func TestRewriteSanitizesHTML(t *testing.T) {
	s := newTestServer(t, 0)

	req := rewriteRequest("html", "http://example.com/", "text/html",
		strings.NewReader(`<p>hi<script>alert(1)</script><a href="next.html">n</a></p>`))
	req.URL.RawQuery += "&sanitize=ugc"
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.NotContains(t, w.Body.String(), "<script")
	assert.Contains(t, w.Body.String(), routeFor(t, route.HTML, "http://example.com/next.html"))
}

func TestRoute(t *testing.T) {
	s := newTestServer(t, 0)

	q := url.Values{"type": {"css"}, "url": {"b.css"}, "page": {"http://example.com/a/index.html"}}
	w := s.do(httptest.NewRequest(http.MethodGet, "/v1/route?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeJSON(t, w)
	assert.Equal(t, routeFor(t, route.CSS, "http://example.com/a/b.css"), body["route"])
	assert.Equal(t, "http://example.com/a/b.css", body["url"])

	q = url.Values{"url": {"https://example.org/x"}}
	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/route?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, routeFor(t, route.HTML, "https://example.org/x"), decodeJSON(t, w)["route"])
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.RouteLookups.WithLabelValues("route", monitoring.StatusOK)))
}

func TestRouteRejects(t *testing.T) {
	s := newTestServer(t, 0)

	for _, q := range []url.Values{
		{"type": {"font"}, "url": {"http://example.com/"}},
		{"type": {"html"}},
		{"type": {"html"}, "url": {"mailto:me@example.com"}},
		{"type": {"html"}, "url": {"x.html"}},
	} {
		w := s.do(httptest.NewRequest(http.MethodGet, "/v1/route?"+q.Encode(), nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q.Encode())
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(s.metrics.RouteLookups.WithLabelValues("route", monitoring.StatusRejected)))
}

func TestResolve(t *testing.T) {
	s := newTestServer(t, 0)
	const target = "http://example.com/a/b.mjs?q=1&r=2"

	a, err := route.NewAddress(target, testCodec, testBase)
	require.NoError(t, err)
	routed, err := route.ToRoute(route.Module, a)
	require.NoError(t, err)

	w := s.do(httptest.NewRequest(http.MethodGet, "/v1/resolve"+routed, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeJSON(t, w)
	assert.Equal(t, "mjs", body["type"])
	assert.Equal(t, a.String(), body["url"])

	for _, bad := range []string{"/v1/resolve/elsewhere/html/x", "/v1/resolve/route/font/x", "/v1/resolve/route/html/%25zz"} {
		w := s.do(httptest.NewRequest(http.MethodGet, bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "plain", body["codec"])
	assert.Equal(t, testBase, body["base"])
	assert.Equal(t, rewrite.DefaultHook, body["hook"])
	assert.Contains(t, body, "stats")
}
