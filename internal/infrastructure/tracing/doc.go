/*
Package tracing provides lightweight request tracing.

Every HTTP request gets a span; handlers open child spans around rewrites.
Finished spans are buffered and written to the zap logger by a collector
goroutine, so tracing never blocks a request.

	tracer := tracing.New("routeproxy", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "rewrite.html")
	span.SetTag("bytes", strconv.Itoa(len(body)))
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Trace context travels in the X-Trace-ID and X-Span-ID headers. Without an
incoming trace id the request id becomes the trace id.
*/
package tracing
