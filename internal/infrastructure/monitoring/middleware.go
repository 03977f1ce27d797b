package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/routeproxy/internal/route"
)

// Rewrite outcomes used as the status label.
const (
	StatusOK       = "ok"
	StatusParse    = "parse_error"
	StatusRejected = "rejected"
)

// Middleware creates a Gin middleware for metrics collection. Paths are
// labelled by their route template so routed paths do not explode the label
// space.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, time.Since(start), reqSize, respSize)
	}
}

// Timer measures one rewrite.
type Timer struct {
	start   time.Time
	metrics *Metrics
	kind    route.ResourceType
}

// NewTimer starts timing a rewrite of kind.
func NewTimer(metrics *Metrics, kind route.ResourceType) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		kind:    kind,
	}
}

// Stop records the rewrite with its outcome and sizes.
func (t *Timer) Stop(status string, in, out int) {
	t.metrics.RecordRewrite(t.kind, status, time.Since(t.start), in, out)
}
