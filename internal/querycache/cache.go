// Package querycache serves entity collections from memory, fetching from the
// backing store only when an entry is absent, stale or invalidated.
//
// At most one fetch per key is in flight at a time; concurrent callers share
// its result. Every fetch (and every direct write) is tagged with a per-key
// sequence number and a result is dropped when a newer one has already been
// applied, so a slow, superseded fetch never regresses newer data.
package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	"storefront/internal/clock"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Key names a cached collection, e.g. "orders" or "products/42".
type Key string

// KeyOf joins a base key and parameters with "/".
func KeyOf(base Key, params ...string) Key {
	if len(params) == 0 {
		return base
	}
	return Key(string(base) + "/" + strings.Join(params, "/"))
}

// Fetcher loads the full value for a key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Options control freshness and retry for a single query.
type Options struct {
	// StaleTime is how long fetched data is served without refetching.
	// Zero means every query refetches.
	StaleTime time.Duration
	// Background serves stale data immediately and refreshes asynchronously.
	// Has no effect when nothing has been fetched yet.
	Background bool
	// ShowRefreshing makes IsLoading also report refetches of data already
	// held, not only the first load.
	ShowRefreshing bool
	// Retry is the number of extra attempts after a failed fetch.
	Retry int
	// RetryDelay returns the wait before retry attempt n (0-based).
	// Defaults to ExponentialBackoff.
	RetryDelay func(attempt int) time.Duration
}

// ExponentialBackoff waits 1s·2^attempt, capped at 30s.
func ExponentialBackoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Result is what a query hands back to its caller. Data may be set
// alongside Err: a failed refresh never clears previously fetched data.
type Result[T any] struct {
	Data      T
	HasData   bool
	IsLoading bool
	Stale     bool
	Err       error
	FetchedAt time.Time
}

type entry struct {
	data          any
	hasData       bool
	fetchedAt     time.Time
	staleAfter    time.Duration
	invalidated   bool
	invalidatedAt uint64
	err           error
	issued        uint64
	applied       uint64
	inflight      int
	refreshing    int
}

func (e *entry) fresh(now time.Time) bool {
	return e.hasData && !e.invalidated && e.staleAfter > 0 && now.Sub(e.fetchedAt) <= e.staleAfter
}

// outcome is the value shared by all callers of one fetch.
type outcome struct {
	err       error
	discarded bool
}

// Cache is the process-wide query cache.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group
	clock   clock.Clock
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a cache. timeout bounds each fetch attempt; zero disables it.
func New(c clock.Clock, timeout time.Duration) *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		clock:   c,
		timeout: timeout,
		logger:  util.NamedLogger("querycache"),
	}
}

// entryLocked returns the entry for key, creating it. c.mu must be held.
func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Query returns the cached value for key when it is fresh and otherwise
// fetches it, joining any fetch already in flight for the key.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options) Result[T] {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.staleAfter = opts.StaleTime
	if e.fresh(c.clock.Now()) {
		res := resultLocked[T](e, c.clock.Now(), opts.ShowRefreshing)
		c.mu.Unlock()
		util.CacheHitsTotal.WithLabelValues(string(key)).Inc()
		return res
	}
	hasData := e.hasData
	c.mu.Unlock()

	util.CacheMissesTotal.WithLabelValues(string(key)).Inc()
	ch := start(ctx, c, key, fetch, opts, false)

	if hasData && opts.Background {
		res := Peek[T](c, key, opts.ShowRefreshing)
		// The refresh may not have been scheduled yet; stale data means it has not landed.
		if opts.ShowRefreshing && res.Stale {
			res.IsLoading = true
		}
		return res
	}
	return wait[T](ctx, c, key, ch, opts.ShowRefreshing)
}

// Refetch bypasses the staleness check and starts a new fetch even when one
// is already in flight; the older fetch's result is dropped if it lands last.
func Refetch[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options) Result[T] {
	c.mu.Lock()
	c.entryLocked(key).staleAfter = opts.StaleTime
	c.mu.Unlock()

	ch := start(ctx, c, key, fetch, opts, true)
	return wait[T](ctx, c, key, ch, opts.ShowRefreshing)
}

// Peek reports the current state of key without fetching.
func Peek[T any](c *Cache, key Key, showRefreshing bool) Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result[T]{}
	}
	return resultLocked[T](e, c.clock.Now(), showRefreshing)
}

func resultLocked[T any](e *entry, now time.Time, showRefreshing bool) Result[T] {
	var data T
	if e.hasData {
		data, _ = e.data.(T)
	}
	return Result[T]{
		Data:      data,
		HasData:   e.hasData,
		IsLoading: (!e.hasData && e.inflight > 0) || (showRefreshing && e.refreshing > 0),
		Stale:     e.hasData && !e.fresh(now),
		Err:       e.err,
		FetchedAt: e.fetchedAt,
	}
}

func start[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options, force bool) <-chan singleflight.Result {
	if force {
		c.group.Forget(string(key))
	}
	// The fetch is shared by every caller, so it must outlive the one that started it.
	detached := context.WithoutCancel(ctx)
	return c.group.DoChan(string(key), func() (interface{}, error) {
		return run(detached, c, key, fetch, opts, force), nil
	})
}

func run[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options, force bool) outcome {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.issued++
	seq := e.issued
	e.inflight++
	refresh := force || e.hasData
	if refresh {
		e.refreshing++
	}
	c.mu.Unlock()

	ctx, span := util.StartSpan(ctx, "QueryCache.Fetch")
	defer span.End()

	begin := time.Now()
	val, err := attempt(ctx, c, key, fetch, opts)
	util.CacheFetchLatency.WithLabelValues(string(key)).Observe(time.Since(begin).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	e.inflight--
	if refresh {
		e.refreshing--
	}

	if seq < e.applied {
		util.CacheDiscardedTotal.WithLabelValues(string(key)).Inc()
		c.logger.Debug("Dropping superseded fetch result",
			zap.String("key", string(key)),
			zap.Uint64("seq", seq),
			zap.Uint64("applied", e.applied))
		return outcome{discarded: true}
	}

	if err != nil {
		util.CacheFetchErrorsTotal.WithLabelValues(string(key)).Inc()
		c.logger.Warn("Fetch failed, keeping previous data",
			zap.String("key", string(key)),
			zap.Bool("has_data", e.hasData),
			zap.Error(err))
		e.err = err
		return outcome{err: err}
	}

	e.data = val
	e.hasData = true
	e.fetchedAt = c.clock.Now()
	e.applied = seq
	e.err = nil
	if seq > e.invalidatedAt {
		e.invalidated = false
	}
	return outcome{}
}

func attempt[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options) (T, error) {
	delay := opts.RetryDelay
	if delay == nil {
		delay = ExponentialBackoff
	}

	var (
		val T
		err error
	)
	for n := 0; ; n++ {
		util.CacheFetchesTotal.WithLabelValues(string(key)).Inc()
		val, err = fetchOnce(ctx, c.timeout, fetch)
		if err == nil || n >= opts.Retry {
			return val, err
		}
		c.logger.Debug("Retrying fetch", zap.String("key", string(key)), zap.Int("attempt", n+1), zap.Error(err))
		if serr := c.clock.Sleep(ctx, delay(n)); serr != nil {
			return val, err
		}
	}
}

func fetchOnce[T any](ctx context.Context, timeout time.Duration, fetch Fetcher[T]) (T, error) {
	if timeout <= 0 {
		return fetch(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fetch(ctx)
}

func wait[T any](ctx context.Context, c *Cache, key Key, ch <-chan singleflight.Result, showRefreshing bool) Result[T] {
	select {
	case res := <-ch:
		if res.Shared {
			util.CacheDedupedTotal.WithLabelValues(string(key)).Inc()
		}
		out, _ := res.Val.(outcome)
		r := Peek[T](c, key, showRefreshing)
		if !out.discarded {
			r.Err = out.err
		}
		return r
	case <-ctx.Done():
		r := Peek[T](c, key, showRefreshing)
		r.Err = ctx.Err()
		return r
	}
}

// Invalidate marks key, and every key beneath it ("key/..."), stale so the
// next query refetches. Fetches already in flight cannot mark them fresh again.
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		for _, key := range keys {
			if k == key || strings.HasPrefix(string(k), string(key)+"/") {
				e.invalidated = true
				e.invalidatedAt = e.issued
				c.group.Forget(string(k))
			}
		}
	}
}

// Snapshot is the state of an entry before a direct write, used to roll it back.
type Snapshot struct {
	key     Key
	prev    any
	hadData bool
	seq     uint64
}

// SetData replaces the data of key with update(current). The write counts as
// the newest result, so fetches issued before it are dropped when they land.
func SetData[T any](c *Cache, key Key, update func(current T, ok bool) T) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	var current T
	if e.hasData {
		current, _ = e.data.(T)
	}
	snap := Snapshot{key: key, prev: e.data, hadData: e.hasData}

	e.issued++
	e.applied = e.issued
	snap.seq = e.issued

	e.data = update(current, e.hasData)
	if !e.hasData {
		e.fetchedAt = c.clock.Now()
	}
	e.hasData = true
	return snap
}

// Rollback restores the data captured by snap unless something newer has
// been applied to the entry since.
func (c *Cache) Rollback(snap Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[snap.key]
	if !ok || e.applied != snap.seq {
		return false
	}
	e.data = snap.prev
	e.hasData = snap.hadData
	return true
}
