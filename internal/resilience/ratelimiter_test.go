package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiter_AcquireRelease(t *testing.T) {
	l := NewHostLimiter(HostLimiterConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		MaxConcurrent:     2,
		GlobalConcurrent:  4,
	})
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "a.example"))
	require.NoError(t, l.Acquire(ctx, "a.example"))

	// Third concurrent acquire on the same host must block.
	blocked, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := l.Acquire(blocked, "a.example")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A different host is unaffected.
	require.NoError(t, l.Acquire(ctx, "b.example"))
	l.Release("b.example")

	l.Release("a.example")
	require.NoError(t, l.Acquire(ctx, "a.example"))
	l.Release("a.example")
	l.Release("a.example")
}

func TestHostLimiter_RetryAfterHonouredExactly(t *testing.T) {
	l := NewHostLimiter(DefaultHostLimiterConfig())

	retryAfter := 2 * time.Second
	before := time.Now()
	l.RecordError("slow.example", retryAfter)

	until := l.CooldownUntil("slow.example")
	assert.WithinDuration(t, before.Add(retryAfter), until, 100*time.Millisecond)
}

func TestHostLimiter_ErrorsShrinkRateSuccessesRestore(t *testing.T) {
	l := NewHostLimiter(HostLimiterConfig{RequestsPerSecond: 8, Burst: 8, MaxConcurrent: 4, GlobalConcurrent: 8})

	l.mu.Lock()
	h := l.host("h.example")
	l.mu.Unlock()

	l.RecordError("h.example", 0)
	assert.InDelta(t, 4, float64(h.limiter.Limit()), 0.01)
	l.RecordError("h.example", 0)
	assert.InDelta(t, 2, float64(h.limiter.Limit()), 0.01)

	l.RecordSuccess("h.example")
	assert.InDelta(t, 4, float64(h.limiter.Limit()), 0.01)
	l.RecordSuccess("h.example")
	l.RecordSuccess("h.example")
	assert.InDelta(t, 8, float64(h.limiter.Limit()), 0.01, "rate never exceeds base")
}

func TestHostLimiter_CooldownGrowsWithConsecutiveErrors(t *testing.T) {
	l := NewHostLimiter(HostLimiterConfig{
		RequestsPerSecond: 8, Burst: 8, MaxConcurrent: 4, GlobalConcurrent: 8,
		MinCooldown: 100 * time.Millisecond,
	})

	l.RecordError("h.example", 0)
	first := time.Until(l.CooldownUntil("h.example"))
	l.RecordError("h.example", 0)
	second := time.Until(l.CooldownUntil("h.example"))

	assert.Greater(t, second, first)
}

func TestSemaphore(t *testing.T) {
	t.Run("try acquire up to capacity", func(t *testing.T) {
		s := NewSemaphore(2)
		assert.True(t, s.TryAcquire())
		assert.True(t, s.TryAcquire())
		assert.False(t, s.TryAcquire())
		s.Release()
		assert.True(t, s.TryAcquire())
	})

	t.Run("blocked acquire wakes on release", func(t *testing.T) {
		s := NewSemaphore(1)
		require.True(t, s.TryAcquire())

		done := make(chan error, 1)
		go func() {
			done <- s.Acquire(context.Background())
		}()

		time.Sleep(10 * time.Millisecond)
		s.Release()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("waiter was not woken")
		}
	})

	t.Run("cancelled waiter leaves the queue", func(t *testing.T) {
		s := NewSemaphore(1)
		require.True(t, s.TryAcquire())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- s.Acquire(ctx)
		}()
		time.Sleep(10 * time.Millisecond)
		cancel()

		err := <-done
		assert.ErrorIs(t, err, context.Canceled)

		s.Release()
		assert.Equal(t, 1, s.Available())
	})
}
