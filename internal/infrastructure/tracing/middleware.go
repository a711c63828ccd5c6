package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
)

// HTTPMiddleware opens a span per request, continuing the caller's trace
// when the propagation headers are present
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}

		span, ctx := tracer.StartSpan(FromHeader(c.Request.Context(), c.Request.Header), name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.url", c.Request.URL.String())
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.Finish()
		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		tracer.Submit(span)
	}
}

// RestyMiddleware propagates the request context's trace onto outgoing
// persistence calls
func RestyMiddleware() resty.RequestMiddleware {
	return func(_ *resty.Client, req *resty.Request) error {
		InjectHeader(req.Context(), req.Header)
		return nil
	}
}
