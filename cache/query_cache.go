// Package cache implements a versioned query cache with single-flight
// loading, stale-while-revalidate reads, and TTL-driven invalidation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/observability"
)

// ErrLoadFailed wraps a loader error when no cached data exists to fall
// back on. When stale data exists, reads return it instead of this error.
var ErrLoadFailed = errors.New("query load failed")

// Reason classifies why an entry was invalidated.
type Reason string

const (
	ReasonEvent  Reason = "event"
	ReasonManual Reason = "manual"
	ReasonTTL    Reason = "ttl"
)

// LoadFunc produces a fresh value for a query key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Config configures a Cache. Zero values are filled with defaults.
type Config struct {
	// TTL is how long a fresh entry stays fresh without invalidation.
	// Default: 60s.
	TTL time.Duration

	// SweepInterval is how often the TTL sweeper runs. Default: TTL / 4.
	SweepInterval time.Duration

	// LoadTimeout bounds one background load. Default: 30s.
	LoadTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 60 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.TTL / 4
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
}

// flight is one in-progress load. The version token is captured when the
// flight starts; a completion whose token no longer matches the entry's
// version was overtaken by an invalidation and its result is discarded.
type flight[V any] struct {
	done      chan struct{}
	value     V
	err       error
	discarded bool
	version   uint64
}

type entry[V any] struct {
	mu        sync.Mutex
	data      V
	hasData   bool
	stale     bool
	lastErr   error
	version   uint64
	updatedAt time.Time
	flight    *flight[V]
}

// InvalidateHook observes local invalidations, letting a mirror fan them
// out to other instances. Hooks must not block.
type InvalidateHook func(key string, reason Reason, version uint64)

// Cache is a keyed query cache. Each key has a monotonically increasing
// version; loads carry the version they started from, and results from
// loads that an invalidation overtook are rejected and refetched. Reads
// of a stale entry return the stale value immediately while a refresh
// runs in the background.
type Cache[V any] struct {
	logger  logging.Logger
	cfg     Config
	entries *xsync.Map[string, *entry[V]]

	hookMu sync.RWMutex
	hooks  []InvalidateHook

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

// New creates a Cache and starts its TTL sweeper.
func New[V any](logger logging.Logger, cfg Config) *Cache[V] {
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[V]{
		logger:      logging.ForComponent(logger, logging.ComponentQueryCache),
		cfg:         cfg,
		entries:     xsync.NewMap[string, *entry[V]](),
		sweepCancel: cancel,
		sweepDone:   make(chan struct{}),
	}

	go logging.RecoverGoRoutine(c.logger, "ttl_sweeper", c.sweepLoop)(ctx)
	return c
}

// Close stops the TTL sweeper. In-flight loads finish on their own.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		c.sweepCancel()
		<-c.sweepDone
	})
}

// OnInvalidate registers a hook called after every invalidation.
func (c *Cache[V]) OnInvalidate(hook InvalidateHook) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Get returns the value for key, loading it with load when needed. The
// second return reports staleness: a stale hit returns the previous value
// immediately while a background refresh runs. When no data exists the
// call blocks until the load settles or ctx is done.
func (c *Cache[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, bool, error) {
	var zero V
	e := c.entryFor(key)

	for {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}

		e.mu.Lock()

		if e.hasData && !e.stale {
			v := e.data
			e.mu.Unlock()
			observability.CacheOperationsTotal.WithLabelValues(key, "hit").Inc()
			return v, false, nil
		}

		if f := e.flight; f != nil {
			if e.hasData {
				v := e.data
				e.mu.Unlock()
				observability.CacheOperationsTotal.WithLabelValues(key, "stale_hit").Inc()
				return v, true, nil
			}
			e.mu.Unlock()
			observability.CacheOperationsTotal.WithLabelValues(key, "attach").Inc()

			select {
			case <-ctx.Done():
				return zero, false, ctx.Err()
			case <-f.done:
			}
			if f.discarded {
				continue
			}
			if f.err != nil {
				return zero, false, fmt.Errorf("%w: %v", ErrLoadFailed, f.err)
			}
			return f.value, false, nil
		}

		f := c.startFlightLocked(key, e, load)
		hasStale := e.hasData
		staleVal := e.data
		e.mu.Unlock()

		if hasStale {
			observability.CacheOperationsTotal.WithLabelValues(key, "stale_hit").Inc()
			return staleVal, true, nil
		}

		observability.CacheOperationsTotal.WithLabelValues(key, "miss").Inc()
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-f.done:
		}
		if f.discarded {
			continue
		}
		if f.err != nil {
			return zero, false, fmt.Errorf("%w: %v", ErrLoadFailed, f.err)
		}
		return f.value, false, nil
	}
}

// Status describes an entry's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Info is a point-in-time snapshot of one entry's bookkeeping.
type Info struct {
	Status    Status
	Stale     bool
	Version   uint64
	UpdatedAt time.Time
}

// Inspect returns the entry snapshot used by read surfaces to report
// status, staleness, and version alongside the data.
func (c *Cache[V]) Inspect(key string) Info {
	e, found := c.entries.Load(key)
	if !found {
		return Info{Status: StatusIdle}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	info := Info{
		Stale:     e.stale,
		Version:   e.version,
		UpdatedAt: e.updatedAt,
	}
	switch {
	case e.lastErr != nil:
		info.Status = StatusError
	case e.hasData:
		info.Status = StatusSuccess
	case e.flight != nil:
		info.Status = StatusLoading
	default:
		info.Status = StatusIdle
	}
	return info
}

// Peek returns the cached value without triggering a load. The second
// return reports staleness; ok is false when the key holds no data.
func (c *Cache[V]) Peek(key string) (v V, stale bool, ok bool) {
	e, found := c.entries.Load(key)
	if !found {
		return v, false, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasData {
		return v, false, false
	}
	return e.data, e.stale, true
}

// Version returns the current version counter for key.
func (c *Cache[V]) Version(key string) uint64 {
	e, found := c.entries.Load(key)
	if !found {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Invalidate marks a key stale and bumps its version, so any load still in
// flight completes with a rejected write and refetches. Existing data is
// kept for stale-while-revalidate reads.
func (c *Cache[V]) Invalidate(key string, reason Reason) {
	c.invalidate(key, reason, true)
}

// invalidate implements Invalidate. notify false skips the hooks, which is
// how invalidations arriving FROM the mirror avoid echoing back into it.
func (c *Cache[V]) invalidate(key string, reason Reason, notify bool) {
	e := c.entryFor(key)

	e.mu.Lock()
	e.stale = true
	e.version++
	version := e.version
	e.mu.Unlock()

	observability.CacheInvalidationsTotal.WithLabelValues(key, string(reason)).Inc()
	c.logger.Debug().
		Str(logging.FieldQueryKey, key).
		Str(logging.FieldReason, string(reason)).
		Uint64(logging.FieldVersion, version).
		Msg("cache entry invalidated")

	if !notify {
		return
	}
	c.hookMu.RLock()
	hooks := c.hooks
	c.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(key, reason, version)
	}
}

// Refresh invalidates key and immediately starts a background reload,
// rather than waiting for the next read.
func (c *Cache[V]) Refresh(key string, reason Reason, load LoadFunc[V]) {
	c.Invalidate(key, reason)

	e := c.entryFor(key)
	e.mu.Lock()
	if e.flight == nil {
		c.startFlightLocked(key, e, load)
	}
	e.mu.Unlock()
}

// startFlightLocked begins a load for e. Caller holds e.mu.
func (c *Cache[V]) startFlightLocked(key string, e *entry[V], load LoadFunc[V]) *flight[V] {
	f := &flight[V]{
		done:    make(chan struct{}),
		version: e.version,
	}
	e.flight = f
	go c.runFlight(key, e, f, load)
	return f
}

// runFlight executes one load and settles the flight. The load runs on a
// detached context so a caller that already took the stale value cannot
// cancel a refresh other readers depend on.
func (c *Cache[V]) runFlight(key string, e *entry[V], f *flight[V], load LoadFunc[V]) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LoadTimeout)
	defer cancel()

	start := time.Now()
	v, err := load(ctx)
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.CacheLoadDurationSeconds.WithLabelValues(key, status).
		Observe(time.Since(start).Seconds())

	var refetch bool

	e.mu.Lock()
	e.flight = nil
	switch {
	case err == nil && e.version != f.version:
		// An invalidation overtook this load. The result may predate
		// whatever changed, so it is dropped and fetched again.
		f.discarded = true
		refetch = true
		observability.CacheStaleResultsDiscardedTotal.WithLabelValues(key).Inc()
	case err == nil:
		e.data = v
		e.hasData = true
		e.stale = false
		e.lastErr = nil
		e.updatedAt = time.Now()
	default:
		// Keep old data for stale reads; record the failure.
		e.lastErr = err
	}
	if refetch {
		c.startFlightLocked(key, e, load)
	}
	e.mu.Unlock()

	f.value = v
	f.err = err
	close(f.done)

	if err != nil {
		c.logger.Warn().
			Err(err).
			Str(logging.FieldQueryKey, key).
			Msg("query load failed")
	} else if f.discarded {
		c.logger.Debug().
			Str(logging.FieldQueryKey, key).
			Uint64(logging.FieldVersion, f.version).
			Msg("stale load result discarded, refetching")
	}
}

func (c *Cache[V]) entryFor(key string) *entry[V] {
	e, _ := c.entries.LoadOrCompute(key, func() (*entry[V], bool) {
		return &entry[V]{}, false
	})
	return e
}

func (c *Cache[V]) sweepLoop(ctx context.Context) {
	defer close(c.sweepDone)

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep marks entries older than the TTL stale. The next read of a swept
// key returns the stale value and refreshes in the background.
func (c *Cache[V]) sweep() {
	now := time.Now()
	var expired []string

	c.entries.Range(func(key string, e *entry[V]) bool {
		e.mu.Lock()
		isExpired := e.hasData && !e.stale && now.Sub(e.updatedAt) > c.cfg.TTL
		e.mu.Unlock()
		if isExpired {
			expired = append(expired, key)
		}
		return true
	})

	for _, key := range expired {
		c.Invalidate(key, ReasonTTL)
	}
}
