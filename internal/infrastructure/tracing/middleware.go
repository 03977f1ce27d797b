package tracing

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/routeproxy/internal/shared/id"
)

// Propagation headers.
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"
)

// HTTPMiddleware opens a span per request. An incoming X-Trace-ID and
// X-Span-ID continue the caller's trace; otherwise the trace id already in
// the request context, if any, is kept.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if traceID := c.GetHeader(TraceHeader); id.Acceptable(traceID) {
			ctx = WithTraceID(ctx, TraceID(traceID))
			if parentID := c.GetHeader(SpanHeader); id.Acceptable(parentID) {
				ctx = context.WithValue(ctx, spanIDKey, SpanID(parentID))
			}
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}
