package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/benrt/internal/clock"
)

// FakeClock is a manually advanced clock.Clock for deterministic tests.
//
// Timers fire only from Advance, in deadline order (ties in creation order),
// with Now() set to the timer's deadline while its callback runs. Callbacks
// run outside the internal lock and may schedule further timers; those fire
// in the same Advance call when they fall due before its target.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	id       int64
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

// Epoch is the default start time for fake clocks.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFakeClock creates a fake clock at start. A zero start uses Epoch.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run once the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{clock: c, id: c.nextID, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Stop implements clock.Timer.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	c.mu.Lock()
	if target.After(c.now) {
		c.now = target
	}
	c.mu.Unlock()
}

// popDue removes and returns the earliest live timer due at or before target,
// moving Now() to its deadline.
func (c *FakeClock) popDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline.Equal(c.timers[j].deadline) {
			return c.timers[i].id < c.timers[j].id
		}
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})

	if len(c.timers) == 0 || c.timers[0].deadline.After(target) {
		return nil
	}
	t := c.timers[0]
	t.fired = true
	c.timers = c.timers[1:]
	if t.deadline.After(c.now) {
		c.now = t.deadline
	}
	return t
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
