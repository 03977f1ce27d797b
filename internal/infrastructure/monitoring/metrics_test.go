package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/routeproxy/internal/route"
)

func TestInstancesDoNotShareRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.ReferenceRouted(route.CSS)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ReferencesRouted.WithLabelValues("css")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ReferencesRouted.WithLabelValues("css")))
}

func TestRecordRewrite(t *testing.T) {
	m := NewMetrics()

	m.RecordRewrite(route.HTML, StatusOK, time.Millisecond, 100, 140)
	m.RecordRewrite(route.HTML, StatusParse, time.Millisecond, 50, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewritesTotal.WithLabelValues("html", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewritesTotal.WithLabelValues("html", StatusParse)))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Rewrites)
	assert.Equal(t, int64(1), snap.RewriteErrors)
}

func TestObserverMethods(t *testing.T) {
	m := NewMetrics()
	m.ReferenceRouted(route.JS)
	m.ReferenceRouted(route.JS)
	m.ReferenceSkipped(route.HTML, "scheme")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReferencesRouted.WithLabelValues("js")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReferencesSkipped.WithLabelValues("html", "scheme")))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Routed)
	assert.Equal(t, int64(1), snap.Skipped)
}

func TestTimer(t *testing.T) {
	m := NewMetrics()
	NewTimer(m, route.CSS).Stop(StatusOK, 10, 20)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewritesTotal.WithLabelValues("css", StatusOK)))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/v1/resolve/*route", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/v1/resolve/a", "/v1/resolve/b", "/nowhere"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/v1/resolve/*route", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "routeproxy_http_requests_total")
	assert.Contains(t, string(body), "routeproxy_uptime_seconds")
}
