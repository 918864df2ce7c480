package subscription_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/svc/subscription"
)

func TestKeyedLocker(t *testing.T) {
	t.Parallel()

	t.Run("serializes one key", func(t *testing.T) {
		t.Parallel()
		l := subscription.NewKeyedLocker()

		var (
			inside  atomic.Int32
			maxSeen atomic.Int32
			wg      sync.WaitGroup
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := l.Acquire(context.Background(), "customer:1")
				if !assert.NoError(t, err) {
					return
				}
				defer release()

				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxSeen.Load())
	})

	t.Run("other keys are not blocked", func(t *testing.T) {
		t.Parallel()
		l := subscription.NewKeyedLocker()

		release, err := l.Acquire(context.Background(), "a")
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		releaseB, err := l.Acquire(ctx, "b")
		require.NoError(t, err)
		releaseB()
	})

	t.Run("gives up when context ends", func(t *testing.T) {
		t.Parallel()
		l := subscription.NewKeyedLocker()

		release, err := l.Acquire(context.Background(), "a")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx, "a")
		assert.ErrorIs(t, err, subscription.ErrLockNotAcquired)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		release()
		release() // second call is a no-op

		again, err := l.Acquire(context.Background(), "a")
		require.NoError(t, err)
		again()
	})
}
