package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/gaborage/restkit/credentials"
	"github.com/gaborage/restkit/logger"
)

func newTestCall(retries int) *Call {
	u, _ := url.Parse(testBaseURL + "/items")
	return &Call{
		Method:           http.MethodGet,
		URL:              u,
		Header:           http.Header{},
		RetriesRemaining: retries,
	}
}

func okHandler(_ context.Context, call *Call) (*Response, error) {
	call.Attempts++
	return &Response{StatusCode: http.StatusOK}, nil
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Stage {
		return func(next Handler) Handler {
			return func(ctx context.Context, call *Call) (*Response, error) {
				order = append(order, name)
				return next(ctx, call)
			}
		}
	}

	h := Chain(okHandler, mark("first"), nil, mark("second"), mark("third"))
	_, err := h(context.Background(), newTestCall(0))

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRetryStage(t *testing.T) {
	tests := []struct {
		name     string
		budget   int
		failWith error
		attempts int
		left     int
	}{
		{name: "network failure uses whole budget", budget: 2, failWith: NewNetworkError("reset", nil), attempts: 3, left: 0},
		{name: "timeout is retried", budget: 1, failWith: NewTimeoutError("slow", time.Second), attempts: 2, left: 0},
		{name: "http error is not retried", budget: 4, failWith: NewHTTPError("boom", 500, nil), attempts: 1, left: 4},
		{name: "cancellation is not retried", budget: 4, failWith: NewCancellationError("stop", nil), attempts: 1, left: 4},
		{name: "validation is not retried", budget: 4, failWith: NewValidationError("bad", "path"), attempts: 1, left: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := newTestCall(tt.budget)
			failing := func(_ context.Context, c *Call) (*Response, error) {
				c.Attempts++
				return nil, tt.failWith
			}

			_, err := retryStage(logger.Nop(), 0)(failing)(context.Background(), call)

			assert.Equal(t, tt.failWith, err)
			assert.Equal(t, tt.attempts, call.Attempts)
			assert.Equal(t, tt.left, call.RetriesRemaining)
		})
	}

	t.Run("success stops retrying", func(t *testing.T) {
		call := newTestCall(3)
		handler := func(ctx context.Context, c *Call) (*Response, error) {
			if c.Attempts == 0 {
				c.Attempts++
				return nil, NewNetworkError("reset", nil)
			}
			return okHandler(ctx, c)
		}

		resp, err := retryStage(logger.Nop(), time.Millisecond)(handler)(context.Background(), call)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, call.Attempts)
		assert.Equal(t, 2, call.RetriesRemaining)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		call := newTestCall(3)
		ctx, cancel := context.WithCancel(context.Background())
		handler := func(_ context.Context, c *Call) (*Response, error) {
			c.Attempts++
			cancel()
			return nil, NewNetworkError("reset", nil)
		}

		_, err := retryStage(logger.Nop(), 0)(handler)(ctx, call)

		assert.True(t, IsCanceled(err))
		assert.Equal(t, 1, call.Attempts)
	})
}

func TestAuthStage(t *testing.T) {
	capture := func(dst *string) Handler {
		return func(_ context.Context, call *Call) (*Response, error) {
			*dst = call.Header.Get(HeaderAuthorization)
			return &Response{}, nil
		}
	}

	t.Run("sets bearer token", func(t *testing.T) {
		var got string
		_, err := authStage(credentials.Static("abc"))(capture(&got))(context.Background(), newTestCall(0))
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc", got)
	})

	t.Run("removes token set on an earlier attempt", func(t *testing.T) {
		store := credentials.NewStore()
		store.Set("abc")
		call := newTestCall(0)
		var got string
		stage := authStage(store)(capture(&got))

		_, _ = stage(context.Background(), call)
		assert.Equal(t, "Bearer abc", got)

		store.Clear()
		_, _ = stage(context.Background(), call)
		assert.Empty(t, got)
		assert.NotContains(t, call.Header, HeaderAuthorization)
	})

	t.Run("basic auth suppresses bearer", func(t *testing.T) {
		call := newTestCall(0)
		call.Auth = &BasicAuth{Username: "u", Password: "p"}
		var got string
		_, _ = authStage(credentials.Static("abc"))(capture(&got))(context.Background(), call)
		assert.Empty(t, got)
	})
}

func TestTimeoutStage(t *testing.T) {
	t.Run("sets attempt deadline with cause", func(t *testing.T) {
		var cause error
		handler := func(ctx context.Context, _ *Call) (*Response, error) {
			<-ctx.Done()
			cause = context.Cause(ctx)
			return nil, ctx.Err()
		}

		_, err := timeoutStage(10*time.Millisecond)(handler)(context.Background(), newTestCall(0))

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, cause, errAttemptTimeout)
	})

	t.Run("zero timeout adds no deadline", func(t *testing.T) {
		var hasDeadline bool
		handler := func(ctx context.Context, call *Call) (*Response, error) {
			_, hasDeadline = ctx.Deadline()
			return okHandler(ctx, call)
		}

		_, err := timeoutStage(0)(handler)(context.Background(), newTestCall(0))

		require.NoError(t, err)
		assert.False(t, hasDeadline)
	})
}

func TestRateLimitStage(t *testing.T) {
	t.Run("rejects waits beyond the caller deadline", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		stage := rateLimitStage(limiter)(okHandler)
		_, err := stage(context.Background(), newTestCall(0))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = stage(ctx, newTestCall(0))

		assert.True(t, IsErrorType(err, InterceptorError), "got %v", err)
	})

	t.Run("cancelled wait", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		require.True(t, limiter.Allow())
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		_, err := rateLimitStage(limiter)(okHandler)(ctx, newTestCall(0))

		assert.True(t, IsCanceled(err), "got %v", err)
	})
}

func TestBreakerStage(t *testing.T) {
	cb := newBreaker("test", BreakerSettings{MaxFailures: 1, OpenTimeout: time.Minute}, logger.Nop())
	calls := 0
	failing := func(context.Context, *Call) (*Response, error) {
		calls++
		return nil, NewNetworkError("reset", errors.New("eof"))
	}
	stage := breakerStage(cb)(failing)

	_, err := stage(context.Background(), newTestCall(0))
	assert.True(t, IsErrorType(err, NetworkError))

	_, err = stage(context.Background(), newTestCall(0))
	assert.True(t, IsErrorType(err, CircuitOpenError), "got %v", err)
	assert.Equal(t, 1, calls)
}
