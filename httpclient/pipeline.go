package httpclient

import (
	"context"
	nethttp "net/http"
	"net/url"
	"time"
)

// Call is the state a request carries through the pipeline. Stages may read and mutate it;
// the transport builds a fresh *http.Request from it on every attempt.
type Call struct {
	Method string
	URL    *url.URL
	Header nethttp.Header
	Body   []byte
	Auth   *BasicAuth
	// RetriesRemaining only decreases, and only in the retry stage.
	RetriesRemaining int
	// Attempts counts transport attempts made so far.
	Attempts  int
	Cancel    *CancelHandle
	RequestID string

	started   time.Time
	bearerSet bool
}

// Handler runs a call to completion.
type Handler func(ctx context.Context, call *Call) (*Response, error)

// Stage wraps the rest of the pipeline.
type Stage func(next Handler) Handler

// Chain composes stages around terminal so that stages[0] runs first.
func Chain(terminal Handler, stages ...Stage) Handler {
	h := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i] != nil {
			h = stages[i](h)
		}
	}
	return h
}
