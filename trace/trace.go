// Package trace carries request correlation data through contexts and onto outbound
// request headers: an X-Request-ID style identifier and the W3C trace context.
package trace

import (
	"context"
	crand "crypto/rand"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	traceParentKey contextKey = "traceparent"
	traceStateKey  contextKey = "tracestate"

	// HeaderXRequestID is the default request correlation header
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = "traceparent"
	// HeaderTraceState is the W3C tracestate header name
	HeaderTraceState = "tracestate"
)

var w3c = propagation.TraceContext{}

// WithRequestID stores a request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx, if non-empty.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns the request ID from ctx or a new uuid.
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// WithTraceParent stores an inbound traceparent value in the context.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, traceParentKey, traceParent)
}

// ParentFromContext returns the traceparent stored in ctx, if non-empty.
func ParentFromContext(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// WithTraceState stores an inbound tracestate value in the context.
func WithTraceState(ctx context.Context, traceState string) context.Context {
	return context.WithValue(ctx, traceStateKey, traceState)
}

// StateFromContext returns the tracestate stored in ctx, if non-empty.
func StateFromContext(ctx context.Context) (string, bool) {
	if ts, ok := ctx.Value(traceStateKey).(string); ok && ts != "" {
		return ts, true
	}
	return "", false
}

// GenerateTraceParent returns a fresh sampled traceparent value,
// "00-<32 hex trace id>-<16 hex span id>-01".
func GenerateTraceParent() string {
	var tid oteltrace.TraceID
	var sid oteltrace.SpanID
	_, _ = crand.Read(tid[:])
	_, _ = crand.Read(sid[:])
	if !tid.IsValid() {
		tid[len(tid)-1] = 0x01
	}
	if !sid.IsValid() {
		sid[len(sid)-1] = 0x01
	}

	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: oteltrace.FlagsSampled,
	})
	carrier := propagation.MapCarrier{}
	w3c.Inject(oteltrace.ContextWithSpanContext(context.Background(), sc), carrier)
	return carrier.Get(HeaderTraceParent)
}

// InjectRequestID sets header (default X-Request-ID) from ctx unless the request already
// carries one, and returns the value in effect.
func InjectRequestID(ctx context.Context, h http.Header, header string) string {
	if header == "" {
		header = HeaderXRequestID
	}
	if existing := h.Get(header); existing != "" {
		return existing
	}
	id := EnsureRequestID(ctx)
	h.Set(header, id)
	return id
}

// InjectTraceContext sets traceparent/tracestate on h. The active otel span wins, then
// values stored with WithTraceParent/WithTraceState, then a generated traceparent.
// Headers already present on h are left untouched.
func InjectTraceContext(ctx context.Context, h http.Header) {
	if h.Get(HeaderTraceParent) != "" {
		return
	}
	if oteltrace.SpanContextFromContext(ctx).IsValid() {
		w3c.Inject(ctx, propagation.HeaderCarrier(h))
		return
	}
	if tp, ok := ParentFromContext(ctx); ok {
		h.Set(HeaderTraceParent, tp)
		if ts, ok := StateFromContext(ctx); ok {
			h.Set(HeaderTraceState, ts)
		}
		return
	}
	h.Set(HeaderTraceParent, GenerateTraceParent())
}
