package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
)

// GetJSON performs a GET and decodes the JSON response into T.
func GetJSON[T any](ctx context.Context, c Client, req *Request) (T, error) {
	return doJSON[T](ctx, c, nethttp.MethodGet, req)
}

// DeleteJSON performs a DELETE and decodes the JSON response into T.
func DeleteJSON[T any](ctx context.Context, c Client, req *Request) (T, error) {
	return doJSON[T](ctx, c, nethttp.MethodDelete, req)
}

// PostJSON encodes payload as the request body, performs a POST and decodes the response.
func PostJSON[Req, Resp any](ctx context.Context, c Client, req *Request, payload Req) (Resp, error) {
	return sendJSON[Req, Resp](ctx, c, nethttp.MethodPost, req, payload)
}

// PutJSON encodes payload as the request body, performs a PUT and decodes the response.
func PutJSON[Req, Resp any](ctx context.Context, c Client, req *Request, payload Req) (Resp, error) {
	return sendJSON[Req, Resp](ctx, c, nethttp.MethodPut, req, payload)
}

// PatchJSON encodes payload as the request body, performs a PATCH and decodes the response.
func PatchJSON[Req, Resp any](ctx context.Context, c Client, req *Request, payload Req) (Resp, error) {
	return sendJSON[Req, Resp](ctx, c, nethttp.MethodPatch, req, payload)
}

// DecodeJSON decodes resp's body into T. An empty body yields the zero value; trailing
// data after the first JSON value is rejected.
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, newValidationErrorWithCause("failed to decode response", "response", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		var zero T
		return zero, NewValidationError("unexpected extra JSON value in response body", "response")
	}
	return out, nil
}

func sendJSON[Req, Resp any](ctx context.Context, c Client, method string, req *Request, payload Req) (Resp, error) {
	var zero Resp
	body, err := json.Marshal(payload)
	if err != nil {
		return zero, newValidationErrorWithCause("failed to encode body", "body", err)
	}
	r := Request{}
	if req != nil {
		r = *req
	}
	r.Body = body
	return doJSON[Resp](ctx, c, method, &r)
}

func doJSON[T any](ctx context.Context, c Client, method string, req *Request) (T, error) {
	resp, err := c.Do(ctx, method, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeJSON[T](resp)
}
