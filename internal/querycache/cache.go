// Package querycache is the keyed cache every pull-based read goes through.
//
// Entries are addressed by structural keys (see querykey). Concurrent reads of
// an equal key share one in-flight fetch. Data past its stale deadline is
// still served but triggers exactly one background refetch. Entries without
// observers are evicted once their GC window elapses.
//
// Each entry carries a generation counter. Invalidation, SetData and the
// departure of an entry's last observer bump the generation and cancel the
// running fetch; a fetch that settles under an older generation is discarded
// and its waiters receive apperr.ErrSuperseded.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/clock"
	"github.com/roach88/benrt/internal/querykey"
)

// Default timing windows.
const (
	DefaultStaleTime = 30 * time.Second
	DefaultGCTime    = 5 * time.Minute
)

// ErrClosed is returned by reads on a closed cache.
var ErrClosed = apperr.Cancelled("querycache", errors.New("cache closed"))

// Status is an entry's fetch status.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Options are the per-read timing windows. The zero value selects the
// cache defaults.
type Options struct {
	StaleTime time.Duration `yaml:"staleTime"`
	GCTime    time.Duration `yaml:"gcTime"`
}

func (o Options) or(def Options) Options {
	if o == (Options{}) {
		return def
	}
	return o
}

// Fetcher performs the underlying read. ctx is cancelled when the fetch is
// superseded or the cache is closed.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is a point-in-time view of one entry.
type Snapshot struct {
	Key           querykey.Key
	Status        Status
	Data          any
	HasData       bool
	Err           error
	IsFetching    bool
	IsStale       bool
	UpdatedAt     time.Time
	StaleAt       time.Time
	GCDeadline    time.Time
	ObserverCount int
	Generation    uint64

	version uint64
}

type entry struct {
	key  querykey.Key
	id   string
	opts Options

	status      Status
	data        any
	hasData     bool
	err         error
	updatedAt   time.Time
	staleAt     time.Time
	invalidated bool

	gen      uint64
	fetcher  Fetcher
	fetching bool
	fetchSeq uint64
	flight   func() (any, error)
	cancel   context.CancelFunc

	observers  map[*Observer]struct{}
	gcTimer    clock.Timer
	gcSeq      uint64
	gcDeadline time.Time
}

func (e *entry) staleLocked(now time.Time) bool {
	return e.invalidated || now.After(e.staleAt)
}

func (e *entry) flightKey() string {
	return fmt.Sprintf("%s#%d", e.id, e.fetchSeq)
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	flights  singleflight.Group
	pubSeq   uint64
	closed   bool
	base     context.Context
	stop     context.CancelFunc
	clock    clock.Clock
	logger   *slog.Logger
	defaults Options
	metrics  *metrics
}

// Option configures a Cache.
type Option func(*cacheConfig)

type cacheConfig struct {
	clock    clock.Clock
	logger   *slog.Logger
	defaults Options
	reg      prometheus.Registerer
}

// WithClock sets the time source used for staleness and GC timers.
func WithClock(c clock.Clock) Option {
	return func(cfg *cacheConfig) { cfg.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *cacheConfig) { cfg.logger = l }
}

// WithDefaults sets the timing windows used by reads passing zero Options.
func WithDefaults(o Options) Option {
	return func(cfg *cacheConfig) { cfg.defaults = o }
}

// WithRegisterer registers the cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *cacheConfig) { cfg.reg = reg }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	cfg := cacheConfig{
		defaults: Options{StaleTime: DefaultStaleTime, GCTime: DefaultGCTime},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Cache{
		entries:  make(map[string]*entry),
		base:     base,
		stop:     stop,
		clock:    clock.OrReal(cfg.clock),
		logger:   cfg.logger,
		defaults: cfg.defaults,
		metrics:  newMetrics(cfg.reg),
	}
}

// Read returns the data for key, fetching it with fetch when absent.
//
// Cached data is returned immediately; if it is stale and no fetch is
// running, one background refetch starts. Without data, or when the entry
// was invalidated, the caller blocks until the shared fetch settles or ctx
// is done. A failed attempt is retried
// once unless the failure classifies as cancelled.
func (c *Cache) Read(ctx context.Context, key querykey.Key, fetch Fetcher, opts Options) (any, error) {
	id, err := key.Hash()
	if err != nil {
		return nil, apperr.Unknown("querycache.read", err)
	}
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		e := c.lookupLocked(id, key, fetch, opts)
		now := c.clock.Now()
		if e.hasData && !e.invalidated {
			if e.staleLocked(now) {
				c.metrics.staleHits.Inc()
				if !e.fetching {
					c.startLocked(e)
				}
			} else {
				c.metrics.hits.Inc()
			}
			data := e.data
			pubs := c.snapshotsLocked(e, now)
			c.mu.Unlock()
			publish(pubs)
			return data, nil
		}

		c.metrics.misses.Inc()
		ch := c.startLocked(e)
		pubs := c.snapshotsLocked(e, now)
		c.mu.Unlock()
		publish(pubs)

		select {
		case <-ctx.Done():
			return nil, apperr.Cancelled("querycache.read", ctx.Err())
		case res := <-ch:
			if errors.Is(res.Err, apperr.ErrSuperseded) && ctx.Err() == nil {
				continue
			}
			return res.Val, res.Err
		}
	}
}

// Read is the typed form of Cache.Read.
func Read[T any](ctx context.Context, c *Cache, key querykey.Key, fetch func(context.Context) (T, error), opts Options) (T, error) {
	var zero T
	v, err := c.Read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, apperr.Unknown("querycache.read", fmt.Errorf("cached %s holds %T, want %T", key, v, zero))
	}
	return t, nil
}

// DataAs returns the snapshot's data as T.
func DataAs[T any](s Snapshot) (T, bool) {
	t, ok := s.Data.(T)
	return t, ok && s.HasData
}

// SetData seeds key with data as if a fetch had just succeeded. A running
// fetch for key is superseded.
func (c *Cache) SetData(key querykey.Key, data any) error {
	id, err := key.Hash()
	if err != nil {
		return apperr.Unknown("querycache.set-data", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	e := c.lookupLocked(id, key, nil, Options{})
	c.supersedeLocked(e)
	now := c.clock.Now()
	e.status = StatusSuccess
	e.data = data
	e.hasData = true
	e.err = nil
	e.updatedAt = now
	e.staleAt = now.Add(e.opts.StaleTime)
	e.invalidated = false
	if len(e.observers) == 0 {
		c.scheduleGCLocked(e, now)
	}
	pubs := c.snapshotsLocked(e, now)
	c.mu.Unlock()
	publish(pubs)
	return nil
}

// Invalidate marks every entry whose key starts with prefix as stale,
// cancels their running fetches and immediately refetches the observed ones.
// It returns the number of entries matched.
func (c *Cache) Invalidate(prefix querykey.Key) int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	now := c.clock.Now()
	var pubs []publication
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		n++
		e.invalidated = true
		c.supersedeLocked(e)
		if len(e.observers) > 0 && e.fetcher != nil {
			c.startLocked(e)
		}
		pubs = append(pubs, c.snapshotsLocked(e, now)...)
	}
	c.metrics.invalidations.Add(float64(n))
	c.mu.Unlock()
	publish(pubs)

	c.logger.Debug("query cache invalidated",
		"prefix", prefix.String(),
		"entries", n)
	return n
}

// Entry returns a snapshot of key's entry.
func (c *Cache) Entry(key querykey.Key) (Snapshot, bool) {
	id, err := key.Hash()
	if err != nil {
		return Snapshot{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshotLocked(e, c.clock.Now()), true
}

// Len returns the number of entries held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels every running fetch and stops GC timers. Reads after Close
// fail with ErrClosed.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, e := range c.entries {
		if e.gcTimer != nil {
			e.gcTimer.Stop()
			e.gcTimer = nil
		}
	}
	c.mu.Unlock()
	c.stop()
}

// lookupLocked returns the entry for id, creating it when missing. A non-nil
// fetch replaces the fetcher used for background refetches; non-zero opts
// replace the entry's timing windows.
func (c *Cache) lookupLocked(id string, key querykey.Key, fetch Fetcher, opts Options) *entry {
	e, ok := c.entries[id]
	if !ok {
		e = &entry{
			key:       key,
			id:        id,
			opts:      opts.or(c.defaults),
			status:    StatusPending,
			observers: make(map[*Observer]struct{}),
		}
		c.entries[id] = e
		c.metrics.entries.Set(float64(len(c.entries)))
	} else if opts != (Options{}) {
		e.opts = opts
	}
	if fetch != nil {
		e.fetcher = fetch
	}
	return e
}

// startLocked starts a fetch for e unless one is running, and returns the
// channel the running fetch settles on.
func (c *Cache) startLocked(e *entry) <-chan singleflight.Result {
	if !e.fetching {
		e.fetching = true
		e.fetchSeq++
		gen := e.gen
		fetch := e.fetcher
		ctx, cancel := context.WithCancel(c.base)
		e.cancel = cancel
		e.flight = func() (any, error) {
			return c.run(ctx, e, gen, fetch)
		}
	}
	return c.flights.DoChan(e.flightKey(), e.flight)
}

func (c *Cache) run(ctx context.Context, e *entry, gen uint64, fetch Fetcher) (any, error) {
	val, err := attempt(ctx, fetch)
	if err != nil && !apperr.IsCancelled(err) && ctx.Err() == nil {
		c.metrics.retries.Inc()
		c.logger.Debug("query fetch failed, retrying",
			"key", e.key.String(),
			"error", err)
		val, err = attempt(ctx, fetch)
	}
	return c.settle(e, gen, val, err)
}

func attempt(ctx context.Context, fetch Fetcher) (any, error) {
	if fetch == nil {
		return nil, apperr.Unknown("querycache.fetch", errors.New("no fetcher registered"))
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Cancelled("querycache.fetch", err)
	}
	return fetch(ctx)
}

func (c *Cache) settle(e *entry, gen uint64, val any, err error) (any, error) {
	c.mu.Lock()
	if e.gen != gen || c.entries[e.id] != e {
		c.mu.Unlock()
		c.metrics.fetches.WithLabelValues(outcomeSuperseded).Inc()
		return nil, apperr.ErrSuperseded
	}
	e.fetching = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	now := c.clock.Now()
	switch {
	case err == nil:
		e.status = StatusSuccess
		e.data = val
		e.hasData = true
		e.err = nil
		e.updatedAt = now
		e.staleAt = now.Add(e.opts.StaleTime)
		e.invalidated = false
		c.metrics.fetches.WithLabelValues(outcomeSuccess).Inc()
	case apperr.IsCancelled(err):
		c.metrics.fetches.WithLabelValues(outcomeCancelled).Inc()
	default:
		e.status = StatusError
		e.err = err
		c.metrics.fetches.WithLabelValues(outcomeError).Inc()
	}
	if len(e.observers) == 0 {
		c.scheduleGCLocked(e, now)
	}
	pubs := c.snapshotsLocked(e, now)
	c.mu.Unlock()
	publish(pubs)

	if err != nil && !apperr.IsCancelled(err) {
		c.logger.Debug("query fetch failed",
			"key", e.key.String(),
			"error", err)
	}
	return val, err
}

// supersedeLocked bumps e's generation and cancels its running fetch.
func (c *Cache) supersedeLocked(e *entry) {
	e.gen++
	if !e.fetching {
		return
	}
	e.fetching = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if !e.hasData {
		e.status = StatusPending
	}
}

func (c *Cache) scheduleGCLocked(e *entry, now time.Time) {
	if c.closed {
		return
	}
	c.stopGCLocked(e)
	seq := e.gcSeq
	e.gcDeadline = now.Add(e.opts.GCTime)
	e.gcTimer = c.clock.AfterFunc(e.opts.GCTime, func() {
		c.collect(e, seq)
	})
}

func (c *Cache) stopGCLocked(e *entry) {
	e.gcSeq++
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	e.gcDeadline = time.Time{}
}

func (c *Cache) collect(e *entry, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.entries[e.id] != e || e.gcSeq != seq || len(e.observers) > 0 || e.fetching {
		return
	}
	delete(c.entries, e.id)
	e.gen++
	c.metrics.evictions.Inc()
	c.metrics.entries.Set(float64(len(c.entries)))
	c.logger.Debug("query cache entry evicted", "key", e.key.String())
}

func (c *Cache) snapshotLocked(e *entry, now time.Time) Snapshot {
	c.pubSeq++
	return Snapshot{
		Key:           e.key,
		Status:        e.status,
		Data:          e.data,
		HasData:       e.hasData,
		Err:           e.err,
		IsFetching:    e.fetching,
		IsStale:       e.hasData && e.staleLocked(now),
		UpdatedAt:     e.updatedAt,
		StaleAt:       e.staleAt,
		GCDeadline:    e.gcDeadline,
		ObserverCount: len(e.observers),
		Generation:    e.gen,
		version:       c.pubSeq,
	}
}

type publication struct {
	o *Observer
	s Snapshot
}

// snapshotsLocked captures one snapshot per observer of e.
func (c *Cache) snapshotsLocked(e *entry, now time.Time) []publication {
	if len(e.observers) == 0 {
		return nil
	}
	s := c.snapshotLocked(e, now)
	pubs := make([]publication, 0, len(e.observers))
	for o := range e.observers {
		pubs = append(pubs, publication{o: o, s: s})
	}
	return pubs
}

func publish(pubs []publication) {
	for _, p := range pubs {
		p.o.apply(p.s)
	}
}
