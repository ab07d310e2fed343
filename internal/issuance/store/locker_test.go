package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landdocs/pkg/platform/sentinel"
)

func TestKeyedLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("independent keys do not block", func(t *testing.T) {
		l := newKeyedLocker()
		require.NoError(t, l.acquire(ctx, "a", time.Second))
		require.NoError(t, l.acquire(ctx, "b", 10*time.Millisecond))
		l.release("a")
		l.release("b")
		assert.Zero(t, l.size())
	})

	t.Run("held key times out", func(t *testing.T) {
		l := newKeyedLocker()
		require.NoError(t, l.acquire(ctx, "a", time.Second))
		err := l.acquire(ctx, "a", 20*time.Millisecond)
		assert.ErrorIs(t, err, sentinel.ErrLockTimeout)
		assert.Equal(t, 1, l.size())
		l.release("a")
		assert.Zero(t, l.size())
	})

	t.Run("cancellation wins over waiting", func(t *testing.T) {
		l := newKeyedLocker()
		require.NoError(t, l.acquire(ctx, "a", time.Second))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := l.acquire(cctx, "a", time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		l.release("a")
	})

	t.Run("waiter acquires after release", func(t *testing.T) {
		l := newKeyedLocker()
		require.NoError(t, l.acquire(ctx, "a", time.Second))
		got := make(chan error, 1)
		go func() { got <- l.acquire(ctx, "a", time.Second) }()
		time.Sleep(10 * time.Millisecond)
		l.release("a")
		require.NoError(t, <-got)
		l.release("a")
		assert.Zero(t, l.size())
	})
}
