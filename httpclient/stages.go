package httpclient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/gaborage/restkit/credentials"
	"github.com/gaborage/restkit/httpclient/internal/tracking"
	"github.com/gaborage/restkit/logger"
	"github.com/gaborage/restkit/trace"
)

// errAttemptTimeout is the context cause set by the timeout stage.
var errAttemptTimeout = errors.New("attempt timed out")

// traceStage sets the request ID header once per call and stores the ID in the context for
// interceptors. The W3C trace context is set per attempt by the transport.
func traceStage(header string) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (*Response, error) {
			call.RequestID = trace.InjectRequestID(ctx, call.Header, header)
			ctx = trace.WithRequestID(ctx, call.RequestID)
			return next(ctx, call)
		}
	}
}

// retryStage re-runs the rest of the pipeline after network failures while the call has
// budget left. Responses of any status, cancellations and every other failure are returned
// as they are.
func retryStage(log logger.Logger, delay time.Duration) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (*Response, error) {
			for {
				resp, err := next(ctx, call)
				if err == nil || !IsNetworkFailure(err) {
					return resp, err
				}
				if call.RetriesRemaining <= 0 {
					log.Error().
						Err(err).
						Str("method", call.Method).
						Str("url", call.URL.String()).
						Str("request_id", call.RequestID).
						Int("attempts", call.Attempts).
						Msg("request failed")
					return nil, err
				}
				if ctx.Err() != nil {
					return nil, cancellationFromContext(ctx)
				}

				call.RetriesRemaining--
				log.Warn().
					Err(err).
					Str("method", call.Method).
					Str("url", call.URL.String()).
					Str("request_id", call.RequestID).
					Int("retries_remaining", call.RetriesRemaining).
					Msg("retrying request")
				tracking.RecordRetry(ctx, call.Method)

				if err := sleepContext(ctx, delay); err != nil {
					return nil, err
				}
			}
		}
	}
}

// authStage sets the bearer token from source on every attempt. A token set on an earlier
// attempt is removed first, so a cleared credential stops being sent. Request-level basic
// auth and Authorization headers supplied by the caller are left alone.
func authStage(source credentials.TokenSource) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (*Response, error) {
			if call.bearerSet {
				call.Header.Del(HeaderAuthorization)
				call.bearerSet = false
			}
			if source != nil && call.Auth == nil && call.Header.Get(HeaderAuthorization) == "" {
				if token, ok := source.Token(ctx); ok && token != "" {
					call.Header.Set(HeaderAuthorization, "Bearer "+token)
					call.bearerSet = true
				}
			}
			return next(ctx, call)
		}
	}
}

// newBreaker builds a breaker that trips after MaxFailures consecutive network failures.
// HTTP error responses and cancellations count as successes.
func newBreaker(name string, s BreakerSettings, log logger.Logger) *gobreaker.CircuitBreaker {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return !IsNetworkFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// breakerStage fails attempts fast while cb is open.
func breakerStage(cb *gobreaker.CircuitBreaker) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (*Response, error) {
			var resp *Response
			_, err := cb.Execute(func() (interface{}, error) {
				r, err := next(ctx, call)
				resp = r
				return nil, err
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, newCircuitOpenError(err)
			}
			return resp, err
		}
	}
}

// rateLimitStage waits for limiter before each attempt.
func rateLimitStage(limiter *rate.Limiter) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (*Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, cancellationFromContext(ctx)
				}
				return nil, NewInterceptorError("rate limiter rejected request", "rate_limit", err)
			}
			return next(ctx, call)
		}
	}
}

// timeoutStage bounds each attempt by timeout.
func timeoutStage(timeout time.Duration) Stage {
	return func(next Handler) Handler {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, call *Call) (*Response, error) {
			ctx, cancel := context.WithTimeoutCause(ctx, timeout, errAttemptTimeout)
			defer cancel()
			return next(ctx, call)
		}
	}
}

// sleepContext waits for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return cancellationFromContext(ctx)
	}
}

// cancellationFromContext converts the cause of a finished context into a CancellationError.
func cancellationFromContext(ctx context.Context) ClientError {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return NewCancellationError(cause.Error(), cause)
}
