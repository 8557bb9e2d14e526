package httpclient

import (
	"context"
	"fmt"
	"sync"
)

// DefaultCancelReason is used when Cancel is called without a reason.
const DefaultCancelReason = "request cancelled by the user"

// CancelHandle is a cancellation signal shared by any number of calls. Triggering it
// aborts every in-flight call that references it, and calls started afterwards fail
// immediately. The zero value is not usable; create handles with NewCancelHandle or
// CancelScope.NewHandle.
type CancelHandle struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewCancelHandle returns an untriggered handle.
func NewCancelHandle() *CancelHandle {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &CancelHandle{ctx: ctx, cancel: cancel}
}

// Cancel triggers the handle. Only the first call has an effect.
func (h *CancelHandle) Cancel(reason string) {
	if reason == "" {
		reason = DefaultCancelReason
	}
	h.cancel(fmt.Errorf("%w: %s", ErrCanceled, reason))
}

// Done is closed once the handle is triggered.
func (h *CancelHandle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Canceled reports whether the handle has been triggered.
func (h *CancelHandle) Canceled() bool {
	return h.ctx.Err() != nil
}

// Err returns the cancellation cause, or nil while the handle is untriggered.
func (h *CancelHandle) Err() error {
	if h.ctx.Err() == nil {
		return nil
	}
	return context.Cause(h.ctx)
}

// bind derives a context that is cancelled when either ctx or the handle is.
// A handle that was already triggered cancels the returned context before bind returns.
func (h *CancelHandle) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	linked, cancel := context.WithCancelCause(ctx)
	if h == nil {
		return linked, func() { cancel(nil) }
	}
	if h.Canceled() {
		cancel(context.Cause(h.ctx))
		return linked, func() { cancel(nil) }
	}
	stop := context.AfterFunc(h.ctx, func() {
		cancel(context.Cause(h.ctx))
	})
	return linked, func() {
		stop()
		cancel(nil)
	}
}

// CancelScope holds at most one current CancelHandle. It replaces a process-wide
// "current request" slot: each component that wants cancel-the-latest behaviour owns a scope.
// The zero value is ready to use and safe for concurrent use.
type CancelScope struct {
	mu      sync.Mutex
	current *CancelHandle
}

// NewCancelScope returns an empty scope.
func NewCancelScope() *CancelScope {
	return &CancelScope{}
}

// NewHandle creates a handle and makes it current. The previous handle is not triggered.
func (s *CancelScope) NewHandle() *CancelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = NewCancelHandle()
	return s.current
}

// Current returns the current handle, or nil if none was created.
func (s *CancelScope) Current() *CancelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CancelCurrent triggers the current handle and replaces it with a fresh one.
// It does nothing when no handle was ever created.
func (s *CancelScope) CancelCurrent() {
	s.CancelCurrentWithReason(DefaultCancelReason)
}

// CancelCurrentWithReason is CancelCurrent with a custom reason.
func (s *CancelScope) CancelCurrentWithReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.Cancel(reason)
	s.current = NewCancelHandle()
}
