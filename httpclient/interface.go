// Package httpclient is a REST client for a single backend. Calls run through an ordered
// pipeline of stages (trace, retry, auth, circuit breaker, rate limit, timeout, transport),
// can be cancelled through shared CancelHandles and fail with typed ClientErrors.
package httpclient

import (
	"context"
	nethttp "net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaborage/restkit/credentials"
	"github.com/gaborage/restkit/trace"
)

const (
	// HeaderXRequestID is the default request correlation header
	HeaderXRequestID = trace.HeaderXRequestID
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = trace.HeaderTraceParent
	// HeaderTraceState is the W3C trace context "tracestate" header name
	HeaderTraceState = trace.HeaderTraceState
	// HeaderAuthorization carries the bearer token
	HeaderAuthorization = "Authorization"

	defaultTimeout            = 10 * time.Second
	defaultMaxPayloadLogBytes = 1024
	contentTypeJSON           = "application/json"
)

// Client defines the REST client interface for making HTTP requests
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request describes one call. Path is resolved against the client's base URL unless it
// is already absolute.
type Request struct {
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
	Auth    *BasicAuth
	// Retries is the retry budget for network failures. Nil uses Config.MaxRetries.
	Retries *int
	// Cancel aborts the call when triggered. Nil means the call is only bound to ctx.
	Cancel *CancelHandle
}

// RetryBudget returns a Retries value for a Request.
func RetryBudget(n int) *int {
	if n < 0 {
		n = 0
	}
	return &n
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	Body       []byte
	Headers    nethttp.Header
	Stats      Stats
}

// Stats contains request execution statistics
type Stats struct {
	// ElapsedTime covers every attempt and retry delay of the call.
	ElapsedTime time.Duration
	// CallCount is the number of transport attempts made.
	CallCount int64
}

// BasicAuth contains basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response. The body has already been
// read and is replayable.
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// RateLimit throttles attempts. A zero Limit disables limiting.
type RateLimit struct {
	Limit rate.Limit
	Burst int
}

// BreakerSettings configures the circuit breaker stage.
type BreakerSettings struct {
	// MaxFailures consecutive network failures open the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial attempt.
	OpenTimeout time.Duration
}

// Config holds the REST client configuration
type Config struct {
	// BaseURL is prefixed to relative request paths. Empty requires absolute paths.
	BaseURL string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxRetries is the retry budget for requests that do not set one.
	MaxRetries int
	// RetryDelay is the pause before each retry.
	RetryDelay           time.Duration
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	BasicAuth            *BasicAuth
	DefaultHeaders       map[string]string
	// TokenSource supplies the bearer token. Nil sends no Authorization header.
	TokenSource credentials.TokenSource
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
	// RequestIDHeader configures the header name used for request ID propagation (default: X-Request-ID)
	RequestIDHeader string
	// EnableW3CTrace enables W3C Trace Context (traceparent/tracestate) propagation and generation
	EnableW3CTrace bool
	RateLimit      RateLimit
	// Breaker enables the circuit breaker stage when non-nil.
	Breaker *BreakerSettings
	// Transport performs round trips. Nil uses http.DefaultTransport.
	Transport nethttp.RoundTripper
	// Stages run after the timeout stage, right before the transport.
	Stages []Stage
}

// NewRequestIDInterceptor creates a request interceptor that adds the request ID header
// when it is missing. The pipeline does this already; the interceptor serves clients that
// need the ID under additional header names.
func NewRequestIDInterceptor() RequestInterceptor {
	return NewRequestIDInterceptorFor(HeaderXRequestID)
}

// NewRequestIDInterceptorFor creates an interceptor that uses a custom header name
func NewRequestIDInterceptorFor(header string) RequestInterceptor {
	if header == "" {
		header = HeaderXRequestID
	}
	return func(ctx context.Context, req *nethttp.Request) error {
		trace.InjectRequestID(ctx, req.Header, header)
		return nil
	}
}
