// Package scheduler provides the two deferred-execution primitives the
// runtime uses: animation-frame callbacks and low-priority idle tasks.
package scheduler

import (
	"sync"
	"time"

	"github.com/roach88/benrt/internal/clock"
)

// DefaultFrameInterval approximates a 60 Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// DefaultIdleFallback is the delay used for idle tasks when the host offers
// no native idle callback.
const DefaultIdleFallback = 200 * time.Millisecond

// FrameScheduler runs callbacks at the next animation frame.
type FrameScheduler interface {
	// RequestFrame schedules fn for the next frame. The returned function
	// cancels it if it has not run yet.
	RequestFrame(fn func()) (cancel func())
}

// IdleProvider is a host-native idle callback primitive.
type IdleProvider interface {
	RequestIdle(fn func()) (cancel func())
}

// Frames is a clock-driven FrameScheduler. Every callback requested before a
// frame boundary runs in that frame, in request order.
//
// Thread-safety: safe for concurrent use.
type Frames struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	pending []*frameRequest
	timer   clock.Timer
}

type frameRequest struct {
	fn       func()
	canceled bool
}

// NewFrames creates a frame scheduler ticking every interval. A non-positive
// interval uses DefaultFrameInterval.
func NewFrames(c clock.Clock, interval time.Duration) *Frames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Frames{clock: clock.OrReal(c), interval: interval}
}

// RequestFrame implements FrameScheduler.
func (f *Frames) RequestFrame(fn func()) func() {
	req := &frameRequest{fn: fn}

	f.mu.Lock()
	f.pending = append(f.pending, req)
	if f.timer == nil {
		f.timer = f.clock.AfterFunc(f.interval, f.flush)
	}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		req.canceled = true
	}
}

// flush runs one frame. Callbacks requested while flushing land in the next
// frame.
func (f *Frames) flush() {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.timer = nil
	f.mu.Unlock()

	for _, req := range batch {
		f.mu.Lock()
		canceled := req.canceled
		f.mu.Unlock()
		if !canceled {
			req.fn()
		}
	}
}

// Idle runs low-priority tasks after the next paint once the host is idle,
// or after a fixed fallback delay when no native idle primitive exists.
type Idle struct {
	frames   FrameScheduler
	native   IdleProvider
	clock    clock.Clock
	fallback time.Duration
}

// NewIdle creates an idle scheduler. native may be nil.
func NewIdle(frames FrameScheduler, native IdleProvider, c clock.Clock, fallback time.Duration) *Idle {
	if fallback <= 0 {
		fallback = DefaultIdleFallback
	}
	return &Idle{frames: frames, native: native, clock: clock.OrReal(c), fallback: fallback}
}

// Run schedules fn. The returned function cancels it if it has not run yet.
func (s *Idle) Run(fn func()) (cancel func()) {
	var (
		mu       sync.Mutex
		canceled bool
		stop     func()
	)
	run := func() {
		mu.Lock()
		c := canceled
		mu.Unlock()
		if !c {
			fn()
		}
	}

	cancelFrame := s.frames.RequestFrame(func() {
		mu.Lock()
		c := canceled
		mu.Unlock()
		if c {
			return
		}

		var next func()
		if s.native != nil {
			next = s.native.RequestIdle(run)
		} else {
			t := s.clock.AfterFunc(s.fallback, run)
			next = func() { t.Stop() }
		}

		mu.Lock()
		stop = next
		mu.Unlock()
	})

	return func() {
		mu.Lock()
		defer mu.Unlock()
		canceled = true
		cancelFrame()
		if stop != nil {
			stop()
		}
	}
}
