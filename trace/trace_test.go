package trace

import (
	"context"
	nethttp "net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var traceParentPattern = regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`)

const testTraceParent = "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01"

func TestEnsureRequestID(t *testing.T) {
	t.Run("uses existing", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-1")
		assert.Equal(t, "req-1", EnsureRequestID(ctx))
	})

	t.Run("generates uuid", func(t *testing.T) {
		got := EnsureRequestID(context.Background())
		assert.Regexp(t, `^[a-f0-9\-]{36}$`, got)
	})

	t.Run("empty value is ignored", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "")
		_, ok := RequestIDFromContext(ctx)
		assert.False(t, ok)
	})
}

func TestTraceContextRoundTrip(t *testing.T) {
	ctx := WithTraceParent(context.Background(), testTraceParent)
	ctx = WithTraceState(ctx, "vendor=a")

	tp, ok := ParentFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, testTraceParent, tp)

	ts, ok := StateFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "vendor=a", ts)
}

func TestGenerateTraceParentFormat(t *testing.T) {
	for range 20 {
		tp := GenerateTraceParent()
		assert.Regexp(t, traceParentPattern, tp)
	}
	assert.NotEqual(t, GenerateTraceParent(), GenerateTraceParent())
}

func TestInjectRequestID(t *testing.T) {
	t.Run("sets default header from context", func(t *testing.T) {
		h := nethttp.Header{}
		id := InjectRequestID(WithRequestID(context.Background(), "abc"), h, "")
		assert.Equal(t, "abc", id)
		assert.Equal(t, "abc", h.Get(HeaderXRequestID))
	})

	t.Run("keeps existing header", func(t *testing.T) {
		h := nethttp.Header{}
		h.Set("X-Correlation-ID", "keep")
		id := InjectRequestID(WithRequestID(context.Background(), "other"), h, "X-Correlation-ID")
		assert.Equal(t, "keep", id)
		assert.Empty(t, h.Get(HeaderXRequestID))
	})
}

func TestInjectTraceContext(t *testing.T) {
	t.Run("uses active span", func(t *testing.T) {
		tid, err := oteltrace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
		require.NoError(t, err)
		sid, err := oteltrace.SpanIDFromHex("0123456789abcdef")
		require.NoError(t, err)
		sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: oteltrace.FlagsSampled})
		ctx := oteltrace.ContextWithSpanContext(context.Background(), sc)

		h := nethttp.Header{}
		InjectTraceContext(ctx, h)
		assert.Equal(t, testTraceParent, h.Get(HeaderTraceParent))
	})

	t.Run("uses stored values", func(t *testing.T) {
		ctx := WithTraceState(WithTraceParent(context.Background(), testTraceParent), "k=v")
		h := nethttp.Header{}
		InjectTraceContext(ctx, h)
		assert.Equal(t, testTraceParent, h.Get(HeaderTraceParent))
		assert.Equal(t, "k=v", h.Get(HeaderTraceState))
	})

	t.Run("generates when absent", func(t *testing.T) {
		h := nethttp.Header{}
		InjectTraceContext(context.Background(), h)
		assert.Regexp(t, traceParentPattern, h.Get(HeaderTraceParent))
	})

	t.Run("existing header untouched", func(t *testing.T) {
		h := nethttp.Header{}
		h.Set(HeaderTraceParent, "preset")
		InjectTraceContext(WithTraceParent(context.Background(), testTraceParent), h)
		assert.Equal(t, "preset", h.Get(HeaderTraceParent))
	})
}
