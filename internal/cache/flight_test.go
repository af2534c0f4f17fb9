package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrBuild_SingleBuilder(t *testing.T) {
	c := newTestCache(t, "")
	ctx := context.Background()

	var builds atomic.Int32
	release := make(chan struct{})

	build := func(ctx context.Context) ([]byte, error) {
		builds.Add(1)
		<-release
		return []byte("built"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrBuild(ctx, NSDefault, "shared", 0, build)
		}(i)
	}

	// Let all callers pile onto the flight before releasing the build.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load(), "build must run at most once")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("built"), results[i])
	}

	// Result is cached for later callers.
	val, err := c.Get(ctx, NSDefault, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("built"), val)
}

func TestGetOrBuild_ErrorPropagatesToAllWaiters(t *testing.T) {
	c := newTestCache(t, "")
	ctx := context.Background()

	boom := errors.New("boom")
	release := make(chan struct{})

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrBuild(ctx, NSDefault, "failing", 0, func(ctx context.Context) ([]byte, error) {
				<-release
				return nil, boom
			})
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.ErrorIs(t, errs[i], boom)
	}

	// The in-flight entry is cleared: a later call builds again.
	val, err := c.GetOrBuild(ctx, NSDefault, "failing", 0, func(ctx context.Context) ([]byte, error) {
		return []byte("recovered"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), val)
}

func TestGetOrBuild_OriginatorCancelDoesNotStopSharedBuild(t *testing.T) {
	c := newTestCache(t, "")

	started := make(chan struct{})
	release := make(chan struct{})
	build := func(ctx context.Context) ([]byte, error) {
		close(started)
		select {
		case <-release:
			return []byte("done"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	origCtx, origCancel := context.WithCancel(context.Background())

	var origErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, origErr = c.GetOrBuild(origCtx, NSDefault, "k", 0, build)
	}()

	<-started

	// Second waiter joins, then the originator cancels.
	var waiterVal []byte
	var waiterErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		waiterVal, waiterErr = c.GetOrBuild(context.Background(), NSDefault, "k", 0, build)
	}()

	time.Sleep(20 * time.Millisecond)
	origCancel()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.ErrorIs(t, origErr, context.Canceled)
	require.NoError(t, waiterErr, "surviving waiter must still get the result")
	assert.Equal(t, []byte("done"), waiterVal)
}

func TestGetOrBuild_AllWaitersCancelledStopsBuild(t *testing.T) {
	c := newTestCache(t, "")

	buildCancelled := make(chan struct{})
	started := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetOrBuild(ctx, NSDefault, "lonely", 0, func(buildCtx context.Context) ([]byte, error) {
			close(started)
			<-buildCtx.Done()
			close(buildCancelled)
			return nil, buildCtx.Err()
		})
	}()

	<-started
	cancel()

	select {
	case <-buildCancelled:
	case <-time.After(time.Second):
		t.Fatal("build was not cancelled after the last waiter left")
	}
	<-done
}

func TestGetOrBuild_CacheHitSkipsBuild(t *testing.T) {
	c := newTestCache(t, "")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, NSDefault, "warm", []byte("cached"), 0))

	val, err := c.GetOrBuild(ctx, NSDefault, "warm", 0, func(ctx context.Context) ([]byte, error) {
		t.Fatal("build must not run on cache hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), val)
}
