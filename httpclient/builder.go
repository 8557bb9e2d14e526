package httpclient

import (
	"maps"
	nethttp "net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaborage/restkit/config"
	"github.com/gaborage/restkit/credentials"
	"github.com/gaborage/restkit/logger"
)

// Builder provides a fluent interface for configuring a Client
type Builder struct {
	logger logger.Logger
	config *Config
}

// NewBuilder creates a builder with defaults: 10s timeout, no retries, JSON content headers,
// X-Request-ID propagation and no credentials.
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		logger: log,
		config: &Config{
			Timeout:            defaultTimeout,
			MaxPayloadLogBytes: defaultMaxPayloadLogBytes,
			RequestIDHeader:    HeaderXRequestID,
			DefaultHeaders: map[string]string{
				"Content-Type": contentTypeJSON,
				"Accept":       contentTypeJSON,
			},
		},
	}
}

// WithBaseURL sets the URL relative request paths resolve against.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithTimeout sets the per-attempt timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetries sets the default retry budget for network failures
func (b *Builder) WithRetries(maxRetries int) *Builder {
	b.config.MaxRetries = maxRetries
	return b
}

// WithRetryDelay sets the pause before each retry
func (b *Builder) WithRetryDelay(delay time.Duration) *Builder {
	b.config.RetryDelay = delay
	return b
}

// WithBasicAuth sets basic authentication for every request
func (b *Builder) WithBasicAuth(username, password string) *Builder {
	b.config.BasicAuth = &BasicAuth{Username: username, Password: password}
	return b
}

// WithTokenSource sets where bearer tokens come from
func (b *Builder) WithTokenSource(source credentials.TokenSource) *Builder {
	b.config.TokenSource = source
	return b
}

// WithDefaultHeader sets a header sent with every request
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithDefaultHeaders merges headers into the default headers
func (b *Builder) WithDefaultHeaders(headers map[string]string) *Builder {
	maps.Copy(b.config.DefaultHeaders, headers)
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithLogPayloads enables debug payload logging capped at maxBytes (0 keeps the default)
func (b *Builder) WithLogPayloads(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithRequestIDHeader changes the request ID header name
func (b *Builder) WithRequestIDHeader(header string) *Builder {
	if header != "" {
		b.config.RequestIDHeader = header
	}
	return b
}

// WithW3CTrace enables traceparent/tracestate propagation
func (b *Builder) WithW3CTrace(enabled bool) *Builder {
	b.config.EnableW3CTrace = enabled
	return b
}

// WithRateLimit throttles attempts to rps per second with the given burst
func (b *Builder) WithRateLimit(rps float64, burst int) *Builder {
	b.config.RateLimit = RateLimit{Limit: rate.Limit(rps), Burst: burst}
	return b
}

// WithCircuitBreaker opens the circuit after maxFailures consecutive network failures
// and keeps it open for openTimeout
func (b *Builder) WithCircuitBreaker(maxFailures uint32, openTimeout time.Duration) *Builder {
	b.config.Breaker = &BreakerSettings{MaxFailures: maxFailures, OpenTimeout: openTimeout}
	return b
}

// WithTransport replaces the round tripper
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.config.Transport = rt
	return b
}

// WithStage appends a stage that runs right before the transport
func (b *Builder) WithStage(stage Stage) *Builder {
	b.config.Stages = append(b.config.Stages, stage)
	return b
}

// Build creates the client. The builder's configuration is copied, so the builder can be
// reused. An invalid base URL surfaces as a ValidationError on every relative request.
func (b *Builder) Build() Client {
	cfg := *b.config
	cfg.DefaultHeaders = maps.Clone(b.config.DefaultHeaders)
	cfg.RequestInterceptors = append([]RequestInterceptor(nil), b.config.RequestInterceptors...)
	cfg.ResponseInterceptors = append([]ResponseInterceptor(nil), b.config.ResponseInterceptors...)
	cfg.Stages = append([]Stage(nil), b.config.Stages...)
	if b.config.Breaker != nil {
		breaker := *b.config.Breaker
		cfg.Breaker = &breaker
	}
	return newClient(b.logger, &cfg)
}

// NewFromConfig builds a client from loaded configuration. The base URL is validated eagerly.
func NewFromConfig(cfg *config.ClientConfig, log logger.Logger, source credentials.TokenSource) (Client, error) {
	if cfg == nil {
		return nil, NewValidationError("client config is nil", "config")
	}
	if _, err := parseBaseURL(cfg.BaseURL); err != nil {
		return nil, newValidationErrorWithCause("invalid base url", "base_url", err)
	}

	b := NewBuilder(log).
		WithBaseURL(cfg.BaseURL).
		WithTimeout(cfg.Timeout).
		WithDefaultHeaders(cfg.Headers).
		WithRetries(cfg.Retries).
		WithRetryDelay(cfg.RetryDelay).
		WithLogPayloads(cfg.LogPayloads, cfg.MaxPayloadLogBytes).
		WithRequestIDHeader(cfg.RequestIDHeader).
		WithW3CTrace(cfg.W3CTrace).
		WithTokenSource(source)
	if cfg.RateLimit.RPS > 0 {
		b.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	if cfg.Breaker.Enabled {
		b.WithCircuitBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout)
	}
	return b.Build(), nil
}

func newLimiter(rl RateLimit) *rate.Limiter {
	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rl.Limit, burst)
}
