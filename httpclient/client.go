package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gaborage/restkit/httpclient/internal/tracking"
	"github.com/gaborage/restkit/logger"
	"github.com/gaborage/restkit/trace"
)

// client implements Client on top of net/http and the stage pipeline.
type client struct {
	httpClient *nethttp.Client
	logger     logger.Logger
	config     *Config
	baseURL    *url.URL
	baseErr    error
	handler    Handler
}

var _ Client = (*client)(nil)

// newClient builds the client and its pipeline from cfg, which it owns afterwards.
func newClient(log logger.Logger, cfg *Config) *client {
	if log == nil {
		log = logger.Nop()
	}
	rt := cfg.Transport
	if rt == nil {
		rt = nethttp.DefaultTransport
	}
	c := &client{
		httpClient: &nethttp.Client{Transport: rt},
		logger:     log,
		config:     cfg,
	}
	c.baseURL, c.baseErr = parseBaseURL(cfg.BaseURL)
	c.handler = Chain(c.transport, c.stages()...)
	return c
}

// stages returns the pipeline in execution order.
func (c *client) stages() []Stage {
	stages := []Stage{
		traceStage(c.config.RequestIDHeader),
		retryStage(c.logger, c.config.RetryDelay),
		authStage(c.config.TokenSource),
	}
	if c.config.Breaker != nil {
		stages = append(stages, breakerStage(newBreaker(c.breakerName(), *c.config.Breaker, c.logger)))
	}
	if c.config.RateLimit.Limit > 0 {
		stages = append(stages, rateLimitStage(newLimiter(c.config.RateLimit)))
	}
	stages = append(stages, timeoutStage(c.config.Timeout))
	return append(stages, c.config.Stages...)
}

func (c *client) breakerName() string {
	if c.baseURL != nil {
		return c.baseURL.Host
	}
	return "restkit"
}

// parseBaseURL accepts an empty base or an absolute URL, and treats its path as a prefix.
func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("base url must be absolute")
	}
	if u.Path != "" && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Do runs req through the pipeline.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	call, err := c.newCall(method, req)
	if err != nil {
		return nil, err
	}

	ctx, release := call.Cancel.bind(ctx)
	defer release()
	if ctx.Err() != nil {
		return nil, cancellationFromContext(ctx)
	}

	return c.handler(ctx, call)
}

// newCall validates req and resolves it into a Call.
func (c *client) newCall(method string, req *Request) (*Call, error) {
	if req == nil {
		return nil, NewValidationError("request is nil", "request")
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, NewValidationError("method is required", "method")
	}

	target, err := c.resolveURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	header := make(nethttp.Header, len(c.config.DefaultHeaders)+len(req.Headers))
	for k, v := range c.config.DefaultHeaders {
		header.Set(k, v)
	}
	for k, v := range req.Headers {
		header.Set(k, v)
	}

	auth := req.Auth
	if auth == nil {
		auth = c.config.BasicAuth
	}

	retries := c.config.MaxRetries
	if req.Retries != nil {
		retries = *req.Retries
	}
	if retries < 0 {
		retries = 0
	}

	return &Call{
		Method:           method,
		URL:              target,
		Header:           header,
		Body:             req.Body,
		Auth:             auth,
		RetriesRemaining: retries,
		Cancel:           req.Cancel,
		started:          time.Now(),
	}, nil
}

// resolveURL joins path onto the base URL and merges q into the query string.
// A leading "/" is treated as relative to the base path.
func (c *client) resolveURL(path string, q url.Values) (*url.URL, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, NewValidationError("path is required", "path")
	}
	u, err := url.Parse(p)
	if err != nil {
		return nil, newValidationErrorWithCause("invalid path", "path", err)
	}
	if !u.IsAbs() {
		if c.baseErr != nil {
			return nil, newValidationErrorWithCause("invalid base url", "base_url", c.baseErr)
		}
		if c.baseURL == nil {
			return nil, NewValidationError("relative path requires a base url", "path")
		}
		rel := *u
		rel.Path = strings.TrimPrefix(rel.Path, "/")
		u = c.baseURL.ResolveReference(&rel)
	}
	if len(q) > 0 {
		merged := u.Query()
		for k, vs := range q {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
		u.RawQuery = merged.Encode()
	}
	return u, nil
}

// transport is the terminal handler: one round trip for the current attempt.
func (c *client) transport(ctx context.Context, call *Call) (*Response, error) {
	call.Attempts++

	ctx, span := tracking.StartSpan(ctx, call.Method, call.URL)
	done := tracking.AttemptStarted(ctx, call.Method, call.URL.Scheme)
	attempt := tracking.Attempt{Method: call.Method, Scheme: call.URL.Scheme, Host: call.URL.Hostname()}

	resp, err := c.roundTrip(ctx, call, &attempt)

	done()
	tracking.RecordAttempt(ctx, attempt)
	tracking.EndSpan(span, attempt.StatusCode, err)
	return resp, err
}

func (c *client) roundTrip(ctx context.Context, call *Call, attempt *tracking.Attempt) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, call)
	if err != nil {
		attempt.ErrorType = string(ValidationError)
		return nil, err
	}
	if c.config.EnableW3CTrace {
		// ctx carries the attempt span, so the server span nests under it.
		trace.InjectTraceContext(ctx, httpReq.Header)
	}

	for _, interceptor := range c.config.RequestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			attempt.ErrorType = string(InterceptorError)
			return nil, NewInterceptorError("request interceptor failed", "request", err)
		}
	}

	c.logRequest(httpReq, call.Body, call.RequestID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err == nil {
		defer httpResp.Body.Close()
	}
	var body []byte
	if err == nil {
		body, err = io.ReadAll(httpResp.Body)
	}
	elapsed := time.Since(start)
	attempt.Duration = elapsed
	logger.IncrementHTTPCounter(ctx)
	logger.AddHTTPElapsed(ctx, elapsed.Nanoseconds())

	if err != nil {
		cerr := c.classify(ctx, err)
		attempt.ErrorType = string(cerr.Type())
		return nil, cerr
	}
	attempt.StatusCode = httpResp.StatusCode

	if len(c.config.ResponseInterceptors) > 0 {
		httpResp.Body = io.NopCloser(bytes.NewReader(body))
		for _, interceptor := range c.config.ResponseInterceptors {
			if err := interceptor(ctx, httpReq, httpResp); err != nil {
				attempt.ErrorType = string(InterceptorError)
				return nil, NewInterceptorError("response interceptor failed", "response", err)
			}
		}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
		Stats: Stats{
			ElapsedTime: time.Since(call.started),
			CallCount:   int64(call.Attempts),
		},
	}
	c.logResponse(resp, call.RequestID)

	if !IsSuccessStatus(resp.StatusCode) {
		return nil, &httpError{
			message:    serverMessage(resp.StatusCode, body),
			statusCode: resp.StatusCode,
			body:       body,
			header:     resp.Headers,
		}
	}
	return resp, nil
}

func (c *client) newHTTPRequest(ctx context.Context, call *Call) (*nethttp.Request, error) {
	var body io.Reader = nethttp.NoBody
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}
	httpReq, err := nethttp.NewRequestWithContext(ctx, call.Method, call.URL.String(), body)
	if err != nil {
		return nil, newValidationErrorWithCause("failed to create request", "request", err)
	}
	httpReq.Header = call.Header.Clone()
	if call.Auth != nil {
		httpReq.SetBasicAuth(call.Auth.Username, call.Auth.Password)
	}
	return httpReq, nil
}

// classify maps a failed round trip to a ClientError. The attempt context decides between
// cancellation and timeout; everything else is a network failure.
func (c *client) classify(ctx context.Context, err error) ClientError {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.Is(cause, errAttemptTimeout) {
			return newTimeoutErrorWithCause("request timed out", c.config.Timeout, err)
		}
		return cancellationFromContext(ctx)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newTimeoutErrorWithCause("transport timed out", c.config.Timeout, err)
	}
	return NewNetworkError("request failed", err)
}
