package querycache

import (
	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/observable"
	"github.com/roach88/benrt/internal/querykey"
)

// Observer is a live subscription to one entry. While an entry has observers
// it is never evicted, and invalidation refetches it immediately.
type Observer struct {
	c     *Cache
	opts  Options
	state *observable.Store[Snapshot]

	// guarded by c.mu
	e      *entry
	closed bool
}

// Observe attaches an observer to key, starting a fetch when the entry has no
// data or is stale.
func (c *Cache) Observe(key querykey.Key, fetch Fetcher, opts Options) (*Observer, error) {
	id, err := key.Hash()
	if err != nil {
		return nil, apperr.Unknown("querycache.observe", err)
	}
	o := &Observer{c: c, opts: opts, state: observable.New(Snapshot{Key: key, Status: StatusPending})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	pubs := c.attachLocked(o, id, key, fetch)
	c.mu.Unlock()
	publish(pubs)
	return o, nil
}

func (c *Cache) attachLocked(o *Observer, id string, key querykey.Key, fetch Fetcher) []publication {
	e := c.lookupLocked(id, key, fetch, o.opts)
	e.observers[o] = struct{}{}
	c.stopGCLocked(e)
	o.e = e
	now := c.clock.Now()
	if (!e.hasData || e.staleLocked(now)) && !e.fetching && e.fetcher != nil {
		c.startLocked(e)
	}
	return c.snapshotsLocked(e, now)
}

// detachLocked removes o from its entry. The last observer leaving cancels
// the entry's running fetch and starts its GC window.
func (c *Cache) detachLocked(o *Observer) []publication {
	e := o.e
	if e == nil {
		return nil
	}
	o.e = nil
	delete(e.observers, o)
	if len(e.observers) > 0 {
		return c.snapshotsLocked(e, c.clock.Now())
	}
	if c.entries[e.id] == e {
		c.supersedeLocked(e)
		c.scheduleGCLocked(e, c.clock.Now())
	}
	return nil
}

// Result returns the latest snapshot of the observed entry.
func (o *Observer) Result() Snapshot {
	return o.state.Get()
}

// State exposes the snapshot stream for subscriptions.
func (o *Observer) State() *observable.Store[Snapshot] {
	return o.state
}

// SetKey moves the observer to key. Moving to an equal key only refreshes
// the fetcher.
func (o *Observer) SetKey(key querykey.Key, fetch Fetcher) error {
	id, err := key.Hash()
	if err != nil {
		return apperr.Unknown("querycache.observe", err)
	}
	c := o.c
	c.mu.Lock()
	if o.closed || c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if o.e != nil && o.e.id == id && c.entries[id] == o.e {
		if fetch != nil {
			o.e.fetcher = fetch
		}
		c.mu.Unlock()
		return nil
	}
	pubs := c.detachLocked(o)
	pubs = append(pubs, c.attachLocked(o, id, key, fetch)...)
	c.mu.Unlock()
	publish(pubs)
	return nil
}

// Close detaches the observer. It is safe to call more than once.
func (o *Observer) Close() {
	c := o.c
	c.mu.Lock()
	if o.closed {
		c.mu.Unlock()
		return
	}
	o.closed = true
	pubs := c.detachLocked(o)
	c.mu.Unlock()
	publish(pubs)
}

// apply stores s unless a newer snapshot was already applied.
func (o *Observer) apply(s Snapshot) {
	o.state.Modify(func(prev Snapshot) (Snapshot, bool) {
		return s, s.version > prev.version
	})
}
