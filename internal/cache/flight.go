package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// flight is one in-flight build shared by concurrent GetOrBuild callers.
// The build runs on a context detached from the originator; it is
// cancelled only when every waiter has gone away.
type flight struct {
	done    chan struct{}
	value   []byte
	err     error
	waiters int
	cancel  context.CancelFunc
}

// GetOrBuild is the canonical coalescing primitive: at most one
// concurrent build per (ns, key). Concurrent callers await the shared
// result; a build error clears the in-flight entry and propagates to
// all waiters.
func (c *Cache) GetOrBuild(ctx context.Context, nsName, key string, ttlOverride time.Duration, build func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, err := c.Get(ctx, nsName, key); err != nil {
		return nil, err
	} else if value != nil {
		return value, nil
	}

	flightKey := nsName + ":" + key

	// Existence check and creation are atomic under the cache lock.
	c.mu.Lock()
	if f, ok := c.flights[flightKey]; ok {
		f.waiters++
		c.mu.Unlock()
		return c.wait(ctx, flightKey, f)
	}

	buildCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	c.flights[flightKey] = f
	c.mu.Unlock()

	go c.runBuild(buildCtx, nsName, key, flightKey, ttlOverride, build, f)

	return c.wait(ctx, flightKey, f)
}

func (c *Cache) runBuild(ctx context.Context, nsName, key, flightKey string, ttlOverride time.Duration, build func(ctx context.Context) ([]byte, error), f *flight) {
	value, err := build(ctx)

	if err == nil {
		_ = c.Set(ctx, nsName, key, value, ttlOverride)
	}

	c.mu.Lock()
	f.value, f.err = value, err
	delete(c.flights, flightKey)
	c.mu.Unlock()
	f.cancel()
	close(f.done)
}

// wait blocks until the flight resolves or the caller's context ends.
// The last departing waiter cancels the shared build.
func (c *Cache) wait(ctx context.Context, flightKey string, f *flight) ([]byte, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		c.mu.Lock()
		f.waiters--
		last := f.waiters == 0
		c.mu.Unlock()
		if last {
			// Cancellation of one waiter does not stop a shared
			// build; only the last one out turns off the lights.
			f.cancel()
		}
		return nil, ctx.Err()
	}
}

// GetOrBuildJSON is GetOrBuild with JSON encoding at the boundary.
func GetOrBuildJSON[T any](ctx context.Context, c *Cache, ns, key string, ttlOverride time.Duration, build func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	data, err := c.GetOrBuild(ctx, ns, key, ttlOverride, func(ctx context.Context) ([]byte, error) {
		v, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		_ = c.Delete(ctx, ns, key)
		return zero, err
	}
	return v, nil
}
