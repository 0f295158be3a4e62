package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/querykey"
	"github.com/roach88/benrt/internal/testutil"
)

var testOpts = Options{StaleTime: time.Second, GCTime: time.Minute}

type fakeFetch struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int32) (any, error)
}

func (f *fakeFetch) fetch(ctx context.Context) (any, error) {
	n := f.calls.Add(1)
	return f.fn(ctx, n)
}

func constant(v any) *fakeFetch {
	return &fakeFetch{fn: func(context.Context, int32) (any, error) { return v, nil }}
}

func newCache(t *testing.T, opts ...Option) (*Cache, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Time{})
	c := New(append([]Option{WithClock(clk)}, opts...)...)
	t.Cleanup(c.Close)
	return c, clk
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func albumsKey(limit int) querykey.Key {
	return querykey.New("library", "albums", map[string]any{"limit": limit, "offset": 0})
}

func TestRead_DedupesEqualKeys(t *testing.T) {
	c, _ := newCache(t)
	release := make(chan struct{})
	f := &fakeFetch{fn: func(context.Context, int32) (any, error) {
		<-release
		return "page", nil
	}}

	var wg sync.WaitGroup
	results := make([]any, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	eventually(t, func() bool { return f.calls.Load() == 1 }, "fetch should start")
	eventually(t, func() bool {
		s, ok := c.Entry(albumsKey(50))
		return ok && s.IsFetching
	}, "entry should be fetching")
	// Give the second reader time to join the flight.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, []any{"page", "page"}, results)
}

func TestRead_FreshHitSkipsFetch(t *testing.T) {
	c, _ := newCache(t)
	f := constant("v")

	for range 3 {
		v, err := c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRead_StaleServesCachedAndRefetchesOnce(t *testing.T) {
	c, clk := newCache(t)
	release := make(chan struct{})
	f := &fakeFetch{fn: func(_ context.Context, n int32) (any, error) {
		if n == 1 {
			return "v1", nil
		}
		<-release
		return "v2", nil
	}}
	ctx := context.Background()
	key := albumsKey(50)

	v, err := c.Read(ctx, key, f.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clk.Advance(2 * time.Second)

	v, err = c.Read(ctx, key, f.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "v1", v, "stale data is served immediately")
	eventually(t, func() bool { return f.calls.Load() == 2 }, "one background refetch")

	v, err = c.Read(ctx, key, f.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int32(2), f.calls.Load(), "no second refetch while one is running")

	close(release)
	eventually(t, func() bool {
		s, _ := c.Entry(key)
		return s.Data == "v2" && !s.IsFetching
	}, "refetch should land")

	v, err = c.Read(ctx, key, f.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestRead_RetriesOnce(t *testing.T) {
	c, _ := newCache(t)
	f := &fakeFetch{fn: func(context.Context, int32) (any, error) {
		return nil, errors.New("backend unavailable")
	}}

	_, err := c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
	require.Error(t, err)
	assert.Equal(t, int32(2), f.calls.Load())

	s, ok := c.Entry(albumsKey(50))
	require.True(t, ok)
	assert.Equal(t, StatusError, s.Status)
	assert.EqualError(t, s.Err, "backend unavailable")
	assert.False(t, s.HasData)
}

func TestRead_RetrySucceeds(t *testing.T) {
	c, _ := newCache(t)
	f := &fakeFetch{fn: func(_ context.Context, n int32) (any, error) {
		if n == 1 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	}}

	v, err := c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestRead_NeverRetriesCancellation(t *testing.T) {
	c, _ := newCache(t)
	f := &fakeFetch{fn: func(context.Context, int32) (any, error) {
		return nil, errors.New("request aborted")
	}}

	_, err := c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
	require.Error(t, err)
	assert.True(t, apperr.IsCancelled(err))
	assert.Equal(t, int32(1), f.calls.Load())

	s, _ := c.Entry(albumsKey(50))
	assert.NoError(t, s.Err, "cancellations are not recorded as entry errors")
}

func TestRead_CallerCancelLeavesFetchRunning(t *testing.T) {
	c, _ := newCache(t)
	release := make(chan struct{})
	f := &fakeFetch{fn: func(context.Context, int32) (any, error) {
		<-release
		return "late", nil
	}}
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := c.Read(ctx, albumsKey(50), f.fetch, testOpts)
		errc <- err
	}()
	eventually(t, func() bool { return f.calls.Load() == 1 }, "fetch should start")
	cancel()

	err := <-errc
	assert.True(t, apperr.IsCancelled(err))

	close(release)
	eventually(t, func() bool {
		s, _ := c.Entry(albumsKey(50))
		return s.Data == "late"
	}, "shared fetch still lands")
}

func TestRead_SupersededResponseDiscarded(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newCache(t, WithRegisterer(reg))
	release := make(chan struct{})
	f := &fakeFetch{fn: func(_ context.Context, n int32) (any, error) {
		if n == 1 {
			<-release
			return "old", nil
		}
		return "new", nil
	}}

	got := make(chan any, 1)
	go func() {
		v, err := c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
		assert.NoError(t, err)
		got <- v
	}()
	eventually(t, func() bool { return f.calls.Load() == 1 }, "fetch should start")

	assert.Equal(t, 1, c.Invalidate(querykey.New("library")))
	close(release)

	assert.Equal(t, "new", <-got)
	s, _ := c.Entry(albumsKey(50))
	assert.Equal(t, "new", s.Data)
	assert.Equal(t, float64(1), promtest.ToFloat64(c.metrics.fetches.WithLabelValues(outcomeSuperseded)))
}

func TestSetData_SeedsEntry(t *testing.T) {
	c, _ := newCache(t)
	require.NoError(t, c.SetData(albumsKey(50), "seeded"))

	f := &fakeFetch{fn: func(context.Context, int32) (any, error) {
		t.Error("seeded entry must not fetch")
		return nil, nil
	}}
	v, err := c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "seeded", v)
}

func TestGC_EvictsUnobservedAfterWindow(t *testing.T) {
	c, clk := newCache(t)
	_, err := c.Read(context.Background(), albumsKey(50), constant("v").fetch, testOpts)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	s, _ := c.Entry(albumsKey(50))
	assert.Equal(t, clk.Now().Add(time.Minute), s.GCDeadline)

	clk.Advance(59 * time.Second)
	assert.Equal(t, 1, c.Len())
	clk.Advance(2 * time.Second)
	assert.Equal(t, 0, c.Len())
}

func TestGC_ObservedEntriesNeverEvicted(t *testing.T) {
	c, clk := newCache(t)
	o, err := c.Observe(albumsKey(50), constant("v").fetch, testOpts)
	require.NoError(t, err)
	eventually(t, func() bool { return o.Result().HasData }, "observer should load")

	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, c.Len())

	o.Close()
	o.Close()
	s, _ := c.Entry(albumsKey(50))
	assert.Equal(t, 0, s.ObserverCount)

	clk.Advance(61 * time.Second)
	assert.Equal(t, 0, c.Len())
}

func TestGC_ReobserveCancelsEviction(t *testing.T) {
	c, clk := newCache(t)
	o, err := c.Observe(albumsKey(50), constant("v").fetch, testOpts)
	require.NoError(t, err)
	eventually(t, func() bool { return o.Result().HasData }, "observer should load")
	o.Close()

	clk.Advance(30 * time.Second)
	o2, err := c.Observe(albumsKey(50), constant("v").fetch, testOpts)
	require.NoError(t, err)
	defer o2.Close()

	clk.Advance(time.Minute)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidate_RefetchesObservedOnly(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	albums := constant("albums")
	tracks := constant("tracks")
	stats := constant("stats")

	o, err := c.Observe(albumsKey(50), albums.fetch, testOpts)
	require.NoError(t, err)
	defer o.Close()
	eventually(t, func() bool { return o.Result().HasData }, "observer should load")

	tracksKey := querykey.New("library", "tracks", map[string]any{"limit": 100})
	statsKey := querykey.New("stats", "overview", 10)
	_, err = c.Read(ctx, tracksKey, tracks.fetch, testOpts)
	require.NoError(t, err)
	_, err = c.Read(ctx, statsKey, stats.fetch, testOpts)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Invalidate(querykey.New("library")))

	eventually(t, func() bool { return albums.calls.Load() == 2 }, "observed entry refetches immediately")
	assert.Equal(t, int32(1), tracks.calls.Load())

	s, _ := c.Entry(tracksKey)
	assert.True(t, s.IsStale)
	s, _ = c.Entry(statsKey)
	assert.False(t, s.IsStale)

	v, err := c.Read(ctx, tracksKey, tracks.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "tracks", v)
	assert.Equal(t, int32(2), tracks.calls.Load(), "next read refetches")
}

func TestInvalidate_NextReadReturnsFreshData(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	artists := &fakeFetch{fn: func(_ context.Context, n int32) (any, error) {
		if n == 1 {
			return "before-scan", nil
		}
		return "after-scan", nil
	}}
	key := querykey.New("library", "artists", map[string]any{"limit": 50})

	v, err := c.Read(ctx, key, artists.fetch, testOpts)
	require.NoError(t, err)
	require.Equal(t, "before-scan", v)

	require.Equal(t, 1, c.Invalidate(querykey.New("library")))

	v, err = c.Read(ctx, key, artists.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "after-scan", v, "invalidated data is never served")
	assert.Equal(t, int32(2), artists.calls.Load())

	v, err = c.Read(ctx, key, artists.fetch, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "after-scan", v)
	assert.Equal(t, int32(2), artists.calls.Load(), "fresh again after the refetch")
}

func TestObserver_SetKeyCancelsPriorFetch(t *testing.T) {
	c, _ := newCache(t)
	var cancelled atomic.Bool
	first := &fakeFetch{fn: func(ctx context.Context, _ int32) (any, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	}}
	second := constant("page-2")

	o, err := c.Observe(albumsKey(50), first.fetch, testOpts)
	require.NoError(t, err)
	defer o.Close()
	eventually(t, func() bool { return first.calls.Load() == 1 }, "first fetch should start")

	require.NoError(t, o.SetKey(albumsKey(100), second.fetch))

	eventually(t, func() bool { return cancelled.Load() }, "prior fetch should be cancelled")
	eventually(t, func() bool { return o.Result().Data == "page-2" }, "observer follows the new key")
	assert.True(t, querykey.Equal(albumsKey(100), o.Result().Key))

	prior, ok := c.Entry(albumsKey(50))
	require.True(t, ok)
	assert.Equal(t, 0, prior.ObserverCount)
	assert.False(t, prior.HasData)
}

func TestObserver_SetKeySameKeyIsNoop(t *testing.T) {
	c, _ := newCache(t)
	f := constant("v")
	o, err := c.Observe(albumsKey(50), f.fetch, testOpts)
	require.NoError(t, err)
	defer o.Close()
	eventually(t, func() bool { return o.Result().HasData }, "observer should load")

	require.NoError(t, o.SetKey(albumsKey(50), f.fetch))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestObserver_PublishesTransitions(t *testing.T) {
	c, _ := newCache(t)
	release := make(chan struct{})
	f := &fakeFetch{fn: func(context.Context, int32) (any, error) {
		<-release
		return "v", nil
	}}

	o, err := c.Observe(albumsKey(50), f.fetch, testOpts)
	require.NoError(t, err)
	defer o.Close()

	assert.True(t, o.Result().IsFetching)
	assert.Equal(t, StatusPending, o.Result().Status)

	var mu sync.Mutex
	var seen []Status
	unsub := o.State().SubscribeAll(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})
	defer unsub()

	close(release)
	eventually(t, func() bool { return o.Result().Status == StatusSuccess }, "observer should settle")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusSuccess}, seen)
	assert.False(t, o.Result().IsFetching)
}

func TestTypedRead(t *testing.T) {
	c, _ := newCache(t)
	n, err := Read(context.Background(), c, querykey.New("stats", "overview"), func(context.Context) (int, error) {
		return 42, nil
	}, testOpts)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Read(context.Background(), c, querykey.New("stats", "overview"), func(context.Context) (string, error) {
		return "", nil
	}, testOpts)
	require.Error(t, err)
	assert.False(t, apperr.IsCancelled(err))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newCache(t, WithRegisterer(reg))
	f := constant("v")

	_, _ = c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)
	_, _ = c.Read(context.Background(), albumsKey(50), f.fetch, testOpts)

	assert.Equal(t, float64(1), promtest.ToFloat64(c.metrics.misses))
	assert.Equal(t, float64(1), promtest.ToFloat64(c.metrics.hits))
	assert.Equal(t, float64(1), promtest.ToFloat64(c.metrics.fetches.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, float64(1), promtest.ToFloat64(c.metrics.entries))
}

func TestClose(t *testing.T) {
	c, _ := newCache(t)
	c.Close()

	_, err := c.Read(context.Background(), albumsKey(50), constant("v").fetch, testOpts)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, apperr.IsCancelled(err))
	assert.ErrorIs(t, c.SetData(albumsKey(50), "v"), ErrClosed)
}

func TestRead_InvalidKey(t *testing.T) {
	c, _ := newCache(t)
	_, err := c.Read(context.Background(), querykey.New("library", 1.5), constant("v").fetch, testOpts)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}
