package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg Config) *Cache[string] {
	t.Helper()
	c := New[string](zerolog.Nop(), cfg)
	t.Cleanup(c.Close)
	return c
}

func staticLoad(v string) LoadFunc[string] {
	return func(context.Context) (string, error) {
		return v, nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGet_MissLoadsOnce(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int64
	load := func(context.Context) (string, error) {
		calls.Add(1)
		return "listings-v1", nil
	}

	for i := 0; i < 3; i++ {
		v, stale, err := c.Get(context.Background(), "listings", load)
		require.NoError(t, err)
		require.False(t, stale)
		require.Equal(t, "listings-v1", v)
	}
	require.Equal(t, int64(1), calls.Load())
}

func TestGet_SingleFlight(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int64
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v1", nil
	}

	const readers = 10
	var wg sync.WaitGroup
	results := make([]string, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.Get(context.Background(), "listings", load)
			require.NoError(t, err)
			results[i] = v
		}()
	}

	waitFor(t, func() bool { return calls.Load() == 1 })
	close(release)
	wg.Wait()

	require.Equal(t, int64(1), calls.Load())
	for _, v := range results {
		require.Equal(t, "v1", v)
	}
}

func TestGet_StaleWhileRevalidate(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int64
	load := func(context.Context) (string, error) {
		n := calls.Add(1)
		return fmt.Sprintf("v%d", n), nil
	}

	v, stale, err := c.Get(context.Background(), "listings", load)
	require.NoError(t, err)
	require.False(t, stale)
	require.Equal(t, "v1", v)

	c.Invalidate("listings", ReasonManual)

	// The stale read returns the old value immediately and kicks off a
	// background refresh.
	v, stale, err = c.Get(context.Background(), "listings", load)
	require.NoError(t, err)
	require.True(t, stale)
	require.Equal(t, "v1", v)

	waitFor(t, func() bool {
		v, stale, ok := c.Peek("listings")
		return ok && !stale && v == "v2"
	})
}

func TestGet_InvalidationDuringLoadDiscardsResult(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int64
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	load := func(context.Context) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			close(firstStarted)
			<-releaseFirst
		}
		return fmt.Sprintf("v%d", n), nil
	}

	type result struct {
		v     string
		stale bool
		err   error
	}
	got := make(chan result, 1)
	go func() {
		v, stale, err := c.Get(context.Background(), "listings", load)
		got <- result{v, stale, err}
	}()

	<-firstStarted
	c.Invalidate("listings", ReasonEvent)
	close(releaseFirst)

	// The first load's result predates the invalidation, so it is
	// rejected and the loader runs again. The blocked reader sees the
	// refetched value, never v1.
	res := <-got
	require.NoError(t, res.err)
	require.False(t, res.stale)
	require.Equal(t, "v2", res.v)
	require.Equal(t, int64(2), calls.Load())
}

func TestGet_LoadErrorNoData(t *testing.T) {
	c := newTestCache(t, Config{})

	loadErr := errors.New("rpc unavailable")
	_, _, err := c.Get(context.Background(), "listings", func(context.Context) (string, error) {
		return "", loadErr
	})
	require.ErrorIs(t, err, ErrLoadFailed)
}

func TestGet_LoadErrorKeepsStaleData(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int64
	load := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "v1", nil
		}
		return "", errors.New("rpc unavailable")
	}

	_, _, err := c.Get(context.Background(), "listings", load)
	require.NoError(t, err)

	c.Invalidate("listings", ReasonManual)

	v, stale, err := c.Get(context.Background(), "listings", load)
	require.NoError(t, err)
	require.True(t, stale)
	require.Equal(t, "v1", v)

	// The failed refresh keeps the old value available for stale reads.
	waitFor(t, func() bool { return calls.Load() >= 2 })
	v, stale, ok := c.Peek("listings")
	require.True(t, ok)
	require.True(t, stale)
	require.Equal(t, "v1", v)
}

func TestGet_ContextCancelledWhileBlocked(t *testing.T) {
	c := newTestCache(t, Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	load := func(context.Context) (string, error) {
		close(started)
		<-release
		return "v1", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.Get(ctx, "listings", load)
		errCh <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestVersion_MonotonicPerKey(t *testing.T) {
	c := newTestCache(t, Config{})

	require.Equal(t, uint64(0), c.Version("listings"))

	c.Invalidate("listings", ReasonManual)
	require.Equal(t, uint64(1), c.Version("listings"))

	c.Invalidate("listings", ReasonEvent)
	require.Equal(t, uint64(2), c.Version("listings"))

	// Other keys keep their own counters.
	require.Equal(t, uint64(0), c.Version("accounts"))
}

func TestRefresh_ReloadsWithoutRead(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int64
	load := func(context.Context) (string, error) {
		n := calls.Add(1)
		return fmt.Sprintf("v%d", n), nil
	}

	_, _, err := c.Get(context.Background(), "listings", load)
	require.NoError(t, err)

	c.Refresh("listings", ReasonEvent, load)

	waitFor(t, func() bool {
		v, stale, ok := c.Peek("listings")
		return ok && !stale && v == "v2"
	})
}

func TestTTLSweep_MarksStale(t *testing.T) {
	c := newTestCache(t, Config{
		TTL:           30 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	_, _, err := c.Get(context.Background(), "listings", staticLoad("v1"))
	require.NoError(t, err)

	waitFor(t, func() bool {
		_, stale, ok := c.Peek("listings")
		return ok && stale
	})
	require.Equal(t, uint64(1), c.Version("listings"))
}

func TestOnInvalidate_Hook(t *testing.T) {
	c := newTestCache(t, Config{})

	var mu sync.Mutex
	var seen []string
	c.OnInvalidate(func(key string, reason Reason, version uint64) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, fmt.Sprintf("%s/%s/%d", key, reason, version))
	})

	c.Invalidate("listings", ReasonEvent)
	c.Invalidate("listings", ReasonManual)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"listings/event/1", "listings/manual/2"}, seen)
}

func TestInspect(t *testing.T) {
	c := newTestCache(t, Config{})

	require.Equal(t, StatusIdle, c.Inspect("listings").Status)

	_, _, err := c.Get(context.Background(), "listings", staticLoad("v1"))
	require.NoError(t, err)

	info := c.Inspect("listings")
	require.Equal(t, StatusSuccess, info.Status)
	require.False(t, info.Stale)
	require.False(t, info.UpdatedAt.IsZero())

	c.Invalidate("listings", ReasonManual)
	info = c.Inspect("listings")
	require.Equal(t, StatusSuccess, info.Status)
	require.True(t, info.Stale)

	// A failing refresh flips the entry to error while data is kept.
	_, _, err = c.Get(context.Background(), "listings", func(context.Context) (string, error) {
		return "", errors.New("rpc unavailable")
	})
	require.NoError(t, err)
	waitFor(t, func() bool { return c.Inspect("listings").Status == StatusError })
}

func TestPeek_NoData(t *testing.T) {
	c := newTestCache(t, Config{})

	_, _, ok := c.Peek("listings")
	require.False(t, ok)

	// Invalidating a never-loaded key creates no readable data.
	c.Invalidate("listings", ReasonEvent)
	_, _, ok = c.Peek("listings")
	require.False(t, ok)
}
