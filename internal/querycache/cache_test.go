package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/clock"
	"storefront/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestCache() (*Cache, *clock.Fake) {
	c := clock.NewFake(epoch)
	return New(c, 0), c
}

type counter struct {
	calls atomic.Int32
}

func (f *counter) fetcher(val []string, err error) Fetcher[[]string] {
	return func(ctx context.Context) ([]string, error) {
		f.calls.Add(1)
		return val, err
	}
}

func TestQueryServesFreshDataWithoutFetching(t *testing.T) {
	cache, clk := newTestCache()
	ctx := context.Background()
	f := &counter{}
	opts := Options{StaleTime: 2 * time.Minute}

	res := Query(ctx, cache, "fresh-stores", f.fetcher([]string{"a"}, nil), opts)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"a"}, res.Data)
	assert.EqualValues(t, 1, f.calls.Load())

	clk.Advance(time.Minute)
	res = Query(ctx, cache, "fresh-stores", f.fetcher([]string{"b"}, nil), opts)
	assert.Equal(t, []string{"a"}, res.Data)
	assert.False(t, res.Stale)
	assert.EqualValues(t, 1, f.calls.Load())

	clk.Advance(2 * time.Minute)
	res = Query(ctx, cache, "fresh-stores", f.fetcher([]string{"b"}, nil), opts)
	assert.Equal(t, []string{"b"}, res.Data)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestZeroStaleTimeAlwaysRefetches(t *testing.T) {
	cache, _ := newTestCache()
	f := &counter{}

	Query(context.Background(), cache, "zero-stale", f.fetcher([]string{"a"}, nil), Options{})
	Query(context.Background(), cache, "zero-stale", f.fetcher([]string{"a"}, nil), Options{})

	assert.EqualValues(t, 2, f.calls.Load())
}

func TestConcurrentQueriesShareOneFetch(t *testing.T) {
	cache, _ := newTestCache()
	const key = Key("dedup-orders")
	const callers = 8

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"order-1"}, nil
	}

	var wg sync.WaitGroup
	results := make([]Result[[]string], callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Query(context.Background(), cache, key, fetch, Options{StaleTime: time.Minute})
		}(i)
	}

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(util.CacheMissesTotal.WithLabelValues(string(key))) == callers
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, []string{"order-1"}, r.Data)
	}
}

func TestFailedRefreshKeepsPreviousData(t *testing.T) {
	cache, clk := newTestCache()
	ctx := context.Background()
	f := &counter{}
	opts := Options{StaleTime: time.Minute}

	Query(ctx, cache, "keep-on-error", f.fetcher([]string{"m1", "m2"}, nil), opts)
	clk.Advance(2 * time.Minute)

	boom := errors.New("backend down")
	res := Query(ctx, cache, "keep-on-error", f.fetcher(nil, boom), opts)

	assert.ErrorIs(t, res.Err, boom)
	assert.True(t, res.HasData)
	assert.Equal(t, []string{"m1", "m2"}, res.Data)
	assert.False(t, res.IsLoading)
}

func TestFirstFetchFailureHasNoData(t *testing.T) {
	cache, _ := newTestCache()
	boom := errors.New("backend down")

	res := Query(context.Background(), cache, "first-error", (&counter{}).fetcher(nil, boom), Options{})

	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.HasData)
	assert.Nil(t, res.Data)
}

func TestSupersededFetchIsDropped(t *testing.T) {
	cache, _ := newTestCache()
	const key = Key("superseded")
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) ([]string, error) {
		close(started)
		<-release
		return []string{"old"}, nil
	}

	done := make(chan Result[[]string])
	go func() { done <- Query(ctx, cache, key, slow, Options{StaleTime: time.Minute}) }()
	<-started

	res := Refetch(ctx, cache, key, (&counter{}).fetcher([]string{"new"}, nil), Options{StaleTime: time.Minute})
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"new"}, res.Data)

	close(release)
	late := <-done

	assert.NoError(t, late.Err)
	assert.Equal(t, []string{"new"}, late.Data)
	assert.Equal(t, []string{"new"}, Peek[[]string](cache, key, false).Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(util.CacheDiscardedTotal.WithLabelValues(string(key))))
}

func TestRefetchBypassesFreshness(t *testing.T) {
	cache, _ := newTestCache()
	f := &counter{}
	opts := Options{StaleTime: time.Hour}

	Query(context.Background(), cache, "refetch", f.fetcher([]string{"a"}, nil), opts)
	res := Refetch(context.Background(), cache, "refetch", f.fetcher([]string{"b"}, nil), opts)

	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, []string{"b"}, res.Data)
}

func TestInvalidateForcesRefetchIncludingChildren(t *testing.T) {
	cache, _ := newTestCache()
	ctx := context.Background()
	f := &counter{}
	opts := Options{StaleTime: time.Hour}

	Query(ctx, cache, "products", f.fetcher([]string{"p"}, nil), opts)
	Query(ctx, cache, KeyOf("products", "1"), f.fetcher([]string{"p1"}, nil), opts)
	Query(ctx, cache, "productsets", f.fetcher([]string{"s"}, nil), opts)
	require.EqualValues(t, 3, f.calls.Load())

	cache.Invalidate("products")
	assert.True(t, Peek[[]string](cache, KeyOf("products", "1"), false).Stale)

	Query(ctx, cache, "products", f.fetcher([]string{"p"}, nil), opts)
	Query(ctx, cache, KeyOf("products", "1"), f.fetcher([]string{"p1"}, nil), opts)
	Query(ctx, cache, "productsets", f.fetcher([]string{"s"}, nil), opts)
	assert.EqualValues(t, 5, f.calls.Load())
}

func TestSetDataAndRollback(t *testing.T) {
	cache, _ := newTestCache()
	ctx := context.Background()

	Query(ctx, cache, "optimistic", (&counter{}).fetcher([]string{"pending"}, nil), Options{StaleTime: time.Hour})

	snap := SetData(cache, "optimistic", func(cur []string, ok bool) []string {
		require.True(t, ok)
		return []string{"approved"}
	})
	assert.Equal(t, []string{"approved"}, Peek[[]string](cache, "optimistic", false).Data)

	assert.True(t, cache.Rollback(snap))
	assert.Equal(t, []string{"pending"}, Peek[[]string](cache, "optimistic", false).Data)
}

func TestRollbackSkippedAfterNewerWrite(t *testing.T) {
	cache, _ := newTestCache()

	first := SetData(cache, "rollback", func([]string, bool) []string { return []string{"a"} })
	SetData(cache, "rollback", func([]string, bool) []string { return []string{"b"} })

	assert.False(t, cache.Rollback(first))
	assert.Equal(t, []string{"b"}, Peek[[]string](cache, "rollback", false).Data)
}

func TestSetDataSupersedesInFlightFetch(t *testing.T) {
	cache, _ := newTestCache()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) ([]string, error) {
		close(started)
		<-release
		return []string{"pre-write"}, nil
	}

	done := make(chan Result[[]string])
	go func() { done <- Query(ctx, cache, "write-wins", slow, Options{StaleTime: time.Minute}) }()
	<-started

	SetData(cache, "write-wins", func([]string, bool) []string { return []string{"written"} })
	close(release)
	<-done

	assert.Equal(t, []string{"written"}, Peek[[]string](cache, "write-wins", false).Data)
}

func TestIsLoadingOnlyBeforeFirstData(t *testing.T) {
	cache, clk := newTestCache()
	ctx := context.Background()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	slow := func(ctx context.Context) ([]string, error) {
		started <- struct{}{}
		<-release
		return []string{"x"}, nil
	}

	done := make(chan Result[[]string])
	go func() { done <- Query(ctx, cache, "loading", slow, Options{StaleTime: time.Minute}) }()
	<-started
	assert.True(t, Peek[[]string](cache, "loading", false).IsLoading)
	release <- struct{}{}
	<-done

	clk.Advance(2 * time.Minute)
	res := Query(ctx, cache, "loading", slow, Options{StaleTime: time.Minute, Background: true})
	<-started
	assert.True(t, res.Stale)
	assert.False(t, res.IsLoading)
	assert.Equal(t, []string{"x"}, res.Data)
	close(release)
}

func TestBackgroundRefreshLandsAfterServingStale(t *testing.T) {
	cache, clk := newTestCache()
	ctx := context.Background()
	opts := Options{StaleTime: time.Minute, Background: true, ShowRefreshing: true}
	Query(ctx, cache, "background", (&counter{}).fetcher([]string{"v1"}, nil), opts)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) ([]string, error) {
		close(started)
		<-release
		return []string{"v2"}, nil
	}

	clk.Advance(2 * time.Minute)
	res := Query(ctx, cache, "background", slow, opts)
	assert.Equal(t, []string{"v1"}, res.Data)
	assert.True(t, res.Stale)
	assert.True(t, res.IsLoading)

	<-started
	assert.True(t, Peek[[]string](cache, "background", true).IsLoading)
	close(release)

	assert.Eventually(t, func() bool {
		r := Peek[[]string](cache, "background", true)
		return !r.Stale && !r.IsLoading && len(r.Data) == 1 && r.Data[0] == "v2"
	}, time.Second, 5*time.Millisecond)
}

func TestShowRefreshingReportsExplicitRefetch(t *testing.T) {
	cache, _ := newTestCache()
	ctx := context.Background()
	Query(ctx, cache, "refreshing", (&counter{}).fetcher([]string{"x"}, nil), Options{StaleTime: time.Hour})

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) ([]string, error) {
		close(started)
		<-release
		return []string{"y"}, nil
	}

	done := make(chan Result[[]string])
	go func() { done <- Refetch(ctx, cache, "refreshing", slow, Options{StaleTime: time.Hour}) }()
	<-started

	assert.False(t, Peek[[]string](cache, "refreshing", false).IsLoading)
	assert.True(t, Peek[[]string](cache, "refreshing", true).IsLoading)

	close(release)
	assert.Equal(t, []string{"y"}, (<-done).Data)
}

func TestRetryUsesInjectedClock(t *testing.T) {
	cache, clk := newTestCache()
	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]string, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return []string{"ok"}, nil
	}

	res := Query(context.Background(), cache, "retry", fetch, Options{Retry: 3})

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"ok"}, res.Data)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 3*time.Second, clk.Slept())
}

func TestCallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	cache, _ := newTestCache()
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]string, error) {
		<-release
		return []string{"late"}, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Query(ctx, cache, "cancelled", fetch, Options{StaleTime: time.Hour})
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, res.HasData)

	close(release)
	assert.Eventually(t, func() bool {
		return Peek[[]string](cache, "cancelled", false).HasData
	}, time.Second, 5*time.Millisecond)
}

func TestExponentialBackoffCaps(t *testing.T) {
	assert.Equal(t, time.Second, ExponentialBackoff(0))
	assert.Equal(t, 4*time.Second, ExponentialBackoff(2))
	assert.Equal(t, 30*time.Second, ExponentialBackoff(5))
	assert.Equal(t, 30*time.Second, ExponentialBackoff(80))
}
