package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType classifies client failures.
type ErrorType string

const (
	// NetworkError means no response was received (DNS failure, refused or reset connection).
	NetworkError ErrorType = "network"
	// TimeoutError means an attempt exceeded the configured timeout before a response arrived.
	TimeoutError ErrorType = "timeout"
	// HTTPError means the server responded with a non-2xx status.
	HTTPError ErrorType = "http"
	// ValidationError means the request could not be built or a response could not be decoded.
	ValidationError ErrorType = "validation"
	// InterceptorError means a request or response interceptor rejected the exchange.
	InterceptorError ErrorType = "interceptor"
	// CancellationError means the call was aborted by a CancelHandle or the caller's context.
	CancellationError ErrorType = "cancellation"
	// CircuitOpenError means the circuit breaker refused the attempt.
	CircuitOpenError ErrorType = "circuit_open"
)

// ErrCanceled matches every cancellation error with errors.Is.
var ErrCanceled = errors.New("request canceled")

// ClientError is implemented by every error returned from a Client.
type ClientError interface {
	error
	Type() ErrorType
}

type networkError struct {
	message string
	err     error
}

// NewNetworkError creates a network-level failure wrapping err.
func NewNetworkError(message string, err error) ClientError {
	return &networkError{message: message, err: err}
}

func (e *networkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.err)
	}
	return "network error: " + e.message
}

func (e *networkError) Type() ErrorType { return NetworkError }
func (e *networkError) Unwrap() error   { return e.err }

type timeoutError struct {
	message string
	timeout time.Duration
	err     error
}

// NewTimeoutError creates a timeout failure for an attempt limited to timeout.
func NewTimeoutError(message string, timeout time.Duration) ClientError {
	return &timeoutError{message: message, timeout: timeout}
}

func newTimeoutErrorWithCause(message string, timeout time.Duration, err error) ClientError {
	return &timeoutError{message: message, timeout: timeout, err: err}
}

func (e *timeoutError) Error() string {
	if e.timeout > 0 {
		return fmt.Sprintf("timeout error: %s (after %s)", e.message, e.timeout)
	}
	return "timeout error: " + e.message
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }
func (e *timeoutError) Unwrap() error   { return e.err }

// Timeout returns the per-attempt limit that was exceeded.
func (e *timeoutError) Timeout() time.Duration { return e.timeout }

type httpError struct {
	message    string
	statusCode int
	body       []byte
	header     http.Header
}

// NewHTTPError creates a server-response failure.
func NewHTTPError(message string, statusCode int, body []byte) ClientError {
	return &httpError{message: message, statusCode: statusCode, body: body}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.statusCode, e.message)
}

func (e *httpError) Type() ErrorType { return HTTPError }

// StatusCode returns the response status.
func (e *httpError) StatusCode() int { return e.statusCode }

// Body returns the raw response body.
func (e *httpError) Body() []byte { return e.body }

// Header returns the response headers, if known.
func (e *httpError) Header() http.Header { return e.header }

// Message returns the server-provided message or the status text.
func (e *httpError) Message() string { return e.message }

type validationError struct {
	message string
	field   string
	err     error
}

// NewValidationError creates an error for an unusable request or response field.
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

func newValidationErrorWithCause(message, field string, err error) ClientError {
	return &validationError{message: message, field: field, err: err}
}

func (e *validationError) Error() string {
	var b strings.Builder
	b.WriteString("validation error")
	if e.field != "" {
		b.WriteString(" on field '")
		b.WriteString(e.field)
		b.WriteString("'")
	}
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *validationError) Type() ErrorType { return ValidationError }
func (e *validationError) Unwrap() error   { return e.err }

type interceptorError struct {
	message string
	stage   string
	err     error
}

// NewInterceptorError creates an error raised while running interceptors of the given stage.
func NewInterceptorError(message, stage string, err error) ClientError {
	return &interceptorError{message: message, stage: stage, err: err}
}

func (e *interceptorError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("interceptor error [%s]: %s: %v", e.stage, e.message, e.err)
	}
	return fmt.Sprintf("interceptor error [%s]: %s", e.stage, e.message)
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }
func (e *interceptorError) Unwrap() error   { return e.err }

type cancellationError struct {
	message string
	err     error
}

// NewCancellationError creates an error for a call aborted before it completed.
func NewCancellationError(message string, err error) ClientError {
	return &cancellationError{message: message, err: err}
}

func (e *cancellationError) Error() string {
	if e.err != nil && e.err.Error() != e.message {
		return fmt.Sprintf("cancellation error: %s: %v", e.message, e.err)
	}
	return "cancellation error: " + e.message
}

func (e *cancellationError) Type() ErrorType { return CancellationError }
func (e *cancellationError) Unwrap() error   { return e.err }

// Is makes every cancellation error match ErrCanceled.
func (e *cancellationError) Is(target error) bool { return target == ErrCanceled }

type circuitOpenError struct {
	err error
}

func newCircuitOpenError(err error) ClientError {
	return &circuitOpenError{err: err}
}

func (e *circuitOpenError) Error() string {
	return fmt.Sprintf("circuit open error: backend unavailable: %v", e.err)
}

func (e *circuitOpenError) Type() ErrorType { return CircuitOpenError }
func (e *circuitOpenError) Unwrap() error   { return e.err }

// IsErrorType reports whether err, or an error it wraps, is a ClientError of errorType.
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	for err != nil {
		if ce, ok := err.(ClientError); ok && ce.Type() == errorType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsHTTPStatusError reports whether err is an HTTP error with statusCode.
func IsHTTPStatusError(err error, statusCode int) bool {
	status, ok := StatusOf(err)
	return ok && status == statusCode
}

// StatusOf returns the response status carried by err. ok is false for failures where
// no response was received.
func StatusOf(err error) (status int, ok bool) {
	var he *httpError
	if errors.As(err, &he) {
		return he.statusCode, true
	}
	return 0, false
}

// IsSuccessStatus reports whether statusCode is in the 2xx range.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsNetworkFailure reports whether err is a failure where no response was received and
// the call was not cancelled. These are the failures the retry stage re-issues.
func IsNetworkFailure(err error) bool {
	var ce ClientError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Type() == NetworkError || ce.Type() == TimeoutError
}

// IsCanceled reports whether err is a cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// serverMessage extracts a human-readable message from an error response body.
// JSON bodies with a "message" or "error" string are preferred; otherwise the status text.
func serverMessage(statusCode int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
	}
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", statusCode)
}
