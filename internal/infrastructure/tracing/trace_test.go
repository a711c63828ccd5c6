package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTracer(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))
	t.Cleanup(tracer.Close)
	return tracer, logs
}

func TestStartSpanInheritsTrace(t *testing.T) {
	tracer, _ := newTracer(t)

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, ctx := tracer.StartSpan(ctx, "child")

	assert.NotEmpty(t, root.TraceID)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(ctx))
	assert.Equal(t, root.TraceID, GetTraceID(ctx))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newTracer(t)

	r := gin.New()
	r.Use(HTTPMiddleware(tracer))
	var seen TraceID
	r.POST("/api/widget/experiments", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusForbidden)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/widget/experiments", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, TraceID("trace-abc"), seen)
	assert.Equal(t, "trace-abc", w.Header().Get("X-Trace-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Span-ID"))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("span completed").Len() == 1
	}, time.Second, 5*time.Millisecond)

	fields := logs.FilterMessage("span completed").All()[0].ContextMap()
	assert.Equal(t, "/api/widget/experiments", fields["operation"])
	assert.Equal(t, "403", fields["http.status"])
}

func TestRestyMiddlewarePropagates(t *testing.T) {
	tracer, _ := newTracer(t)
	_, ctx := tracer.StartSpan(context.Background(), "persist")

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	defer srv.Close()

	client := resty.New().OnBeforeRequest(RestyMiddleware())
	_, err := client.R().SetContext(ctx).Get(srv.URL)
	require.NoError(t, err)

	got := <-headers
	assert.Equal(t, string(GetTraceID(ctx)), got.Get("X-Trace-ID"))
	assert.Equal(t, string(GetSpanID(ctx)), got.Get("X-Span-ID"))
}

func TestInjectHeaderWithoutTrace(t *testing.T) {
	h := http.Header{}
	InjectHeader(context.Background(), h)
	assert.Empty(t, h)
}

func TestSubmitAfterClose(t *testing.T) {
	tracer, _ := newTracer(t)
	span, _ := tracer.StartSpan(context.Background(), "late")
	tracer.Close()
	tracer.Close()
	assert.NotPanics(t, func() { tracer.Submit(span) })
}

func TestInjectHeaderRoundTrip(t *testing.T) {
	tracer, _ := newTracer(t)
	_, ctx := tracer.StartSpan(context.Background(), "embed.session")

	h := http.Header{}
	InjectHeader(ctx, h)
	back := FromHeader(context.Background(), h)

	assert.Equal(t, GetTraceID(ctx), GetTraceID(back))
	assert.Equal(t, GetSpanID(ctx), GetSpanID(back))
}
