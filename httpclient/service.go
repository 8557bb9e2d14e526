package httpclient

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/url"
)

// CallOption adjusts a single Service call.
type CallOption func(*Request)

// WithRetries sets the retry budget for network failures.
func WithRetries(n int) CallOption {
	return func(r *Request) {
		r.Retries = RetryBudget(n)
	}
}

// WithHeader sets a request header, overriding the client's default.
func WithHeader(key, value string) CallOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[key] = value
	}
}

// Service is the high-level API: verb methods that return the response body, plus a
// CancelScope for cancel-the-latest behaviour. It is safe for concurrent use.
type Service struct {
	client Client
	scope  *CancelScope
}

// NewService wraps client with a fresh CancelScope.
func NewService(client Client) *Service {
	return &Service{client: client, scope: NewCancelScope()}
}

// Scope returns the service's cancel scope.
func (s *Service) Scope() *CancelScope {
	return s.scope
}

// Get fetches path with query merged into the URL.
func (s *Service) Get(ctx context.Context, path string, query url.Values, cancel *CancelHandle, opts ...CallOption) ([]byte, error) {
	return s.call(ctx, nethttp.MethodGet, &Request{Path: path, Query: query, Cancel: cancel}, opts)
}

// Post sends body as JSON to path.
func (s *Service) Post(ctx context.Context, path string, body any, cancel *CancelHandle, opts ...CallOption) ([]byte, error) {
	return s.send(ctx, nethttp.MethodPost, path, body, cancel, opts)
}

// Put sends body as JSON to path.
func (s *Service) Put(ctx context.Context, path string, body any, cancel *CancelHandle, opts ...CallOption) ([]byte, error) {
	return s.send(ctx, nethttp.MethodPut, path, body, cancel, opts)
}

// Patch sends body as JSON to path.
func (s *Service) Patch(ctx context.Context, path string, body any, cancel *CancelHandle, opts ...CallOption) ([]byte, error) {
	return s.send(ctx, nethttp.MethodPatch, path, body, cancel, opts)
}

// Delete removes the resource at path.
func (s *Service) Delete(ctx context.Context, path string, cancel *CancelHandle, opts ...CallOption) ([]byte, error) {
	return s.call(ctx, nethttp.MethodDelete, &Request{Path: path, Cancel: cancel}, opts)
}

// CancelRequest cancels the scope's current handle and installs a fresh one.
// Without a prior CancelToken call it does nothing.
func (s *Service) CancelRequest() {
	s.scope.CancelCurrent()
}

// CancelToken creates a handle, makes it the scope's current one and returns it.
func (s *Service) CancelToken() *CancelHandle {
	return s.scope.NewHandle()
}

func (s *Service) send(ctx context.Context, method, path string, body any, cancel *CancelHandle, opts []CallOption) ([]byte, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, method, &Request{Path: path, Body: payload, Cancel: cancel}, opts)
}

func (s *Service) call(ctx context.Context, method string, req *Request, opts []CallOption) ([]byte, error) {
	for _, opt := range opts {
		opt(req)
	}
	resp, err := s.client.Do(ctx, method, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// encodeBody turns a payload into request bytes. Raw bytes, json.RawMessage and strings are
// sent unchanged; nil sends no body; anything else is JSON-encoded.
func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, newValidationErrorWithCause("failed to encode body", "body", err)
		}
		return data, nil
	}
}
