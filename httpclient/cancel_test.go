package httpclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelHandle(t *testing.T) {
	t.Run("untriggered", func(t *testing.T) {
		h := NewCancelHandle()
		assert.False(t, h.Canceled())
		assert.NoError(t, h.Err())
		select {
		case <-h.Done():
			t.Fatal("done before cancel")
		default:
		}
	})

	t.Run("first reason wins", func(t *testing.T) {
		h := NewCancelHandle()
		h.Cancel("first")
		h.Cancel("second")

		assert.True(t, h.Canceled())
		require.Error(t, h.Err())
		assert.True(t, errors.Is(h.Err(), ErrCanceled))
		assert.Contains(t, h.Err().Error(), "first")
		assert.NotContains(t, h.Err().Error(), "second")
		<-h.Done()
	})

	t.Run("empty reason uses default", func(t *testing.T) {
		h := NewCancelHandle()
		h.Cancel("")
		assert.Contains(t, h.Err().Error(), DefaultCancelReason)
	})
}

func TestCancelHandleBind(t *testing.T) {
	t.Run("nil handle follows parent", func(t *testing.T) {
		var h *CancelHandle
		parent, cancelParent := context.WithCancel(context.Background())
		ctx, release := h.bind(parent)
		defer release()

		cancelParent()
		<-ctx.Done()
		assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
	})

	t.Run("trigger cancels bound context with cause", func(t *testing.T) {
		h := NewCancelHandle()
		ctx, release := h.bind(context.Background())
		defer release()

		h.Cancel("user left")
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("bound context not cancelled")
		}
		assert.ErrorIs(t, context.Cause(ctx), ErrCanceled)
	})

	t.Run("already triggered handle cancels synchronously", func(t *testing.T) {
		h := NewCancelHandle()
		h.Cancel("")
		ctx, release := h.bind(context.Background())
		defer release()

		assert.Error(t, ctx.Err())
	})

	t.Run("release detaches from handle", func(t *testing.T) {
		h := NewCancelHandle()
		ctx, release := h.bind(context.Background())
		release()
		h.Cancel("late")

		assert.NotErrorIs(t, context.Cause(ctx), ErrCanceled)
	})
}

func TestCancelScope(t *testing.T) {
	t.Run("cancel without handle is a no-op", func(t *testing.T) {
		var scope CancelScope
		assert.NotPanics(t, scope.CancelCurrent)
		assert.Nil(t, scope.Current())
	})

	t.Run("cancel triggers current and installs a fresh handle", func(t *testing.T) {
		scope := NewCancelScope()
		h := scope.NewHandle()

		scope.CancelCurrent()

		assert.True(t, h.Canceled())
		next := scope.Current()
		require.NotNil(t, next)
		assert.NotSame(t, h, next)
		assert.False(t, next.Canceled())
	})

	t.Run("superseded handles are not cancelled", func(t *testing.T) {
		scope := NewCancelScope()
		old := scope.NewHandle()
		current := scope.NewHandle()

		scope.CancelCurrentWithReason("navigation")

		assert.False(t, old.Canceled())
		assert.True(t, current.Canceled())
		assert.Contains(t, current.Err().Error(), "navigation")
	})

	t.Run("concurrent use", func(t *testing.T) {
		scope := NewCancelScope()
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				scope.NewHandle()
			}()
			go func() {
				defer wg.Done()
				scope.CancelCurrent()
			}()
		}
		wg.Wait()
		assert.NotNil(t, scope.Current())
	})
}
