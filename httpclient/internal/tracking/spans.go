package tracking

import (
	"context"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// StartSpan starts an "HTTP <METHOD>" client span for one attempt using the global tracer.
// The URL is recorded without user info or query.
func StartSpan(ctx context.Context, method string, u *url.URL) (context.Context, oteltrace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(attrHTTPRequestMethod, method),
	}
	if u != nil {
		attrs = append(attrs,
			attribute.String("url.full", redactedURL(u)),
			attribute.String(attrURLScheme, u.Scheme),
			attribute.String(attrServerAddress, u.Hostname()),
		)
	}
	return otel.Tracer(instrumentationName).Start(ctx, "HTTP "+method,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(attrs...),
	)
}

// EndSpan records the outcome of an attempt and ends span.
// Status codes of 400 and above, or a non-nil err, mark the span as failed.
func EndSpan(span oteltrace.Span, statusCode int, err error) {
	if statusCode > 0 {
		span.SetAttributes(attribute.Int(attrHTTPResponseStatus, statusCode))
	}
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case statusCode >= 400:
		span.SetStatus(codes.Error, strconv.Itoa(statusCode))
	}
	span.End()
}

func redactedURL(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}
