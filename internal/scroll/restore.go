// Package scroll keeps the active viewport's scroll offset in sync with the
// current history entry.
//
// Recording: scroll events are coalesced to at most one store write per
// animation frame.
//
// Restoring: when the current entry changes, its stored offset is applied
// twice: immediately, and again one frame later to correct for content that
// finished laying out (late-loading data) after the first attempt.
package scroll

import (
	"sync"

	"github.com/roach88/benrt/internal/history"
	"github.com/roach88/benrt/internal/observable"
	"github.com/roach88/benrt/internal/scheduler"
)

// Viewport is the scrollable surface of the active view.
type Viewport interface {
	ScrollTop() float64
	SetScrollTop(v float64)
}

// Restorer binds a viewport to a history store.
//
// Thread-safety: safe for concurrent use.
type Restorer struct {
	hist   *history.Store
	view   Viewport
	frames scheduler.FrameScheduler

	mu            sync.Mutex
	recordPending bool
	cancelRecord  func()
	cancelRestore func()
	unsubscribe   func()
	closed        bool
}

// NewRestorer starts restoring view's offset on every entry change.
func NewRestorer(h *history.Store, view Viewport, frames scheduler.FrameScheduler) *Restorer {
	r := &Restorer{hist: h, view: view, frames: frames}
	r.unsubscribe = observable.Subscribe(h.Observable(),
		func(s history.State) int64 { return s.Current().Key },
		func(next, _ int64) { r.restore(next) },
	)
	return r
}

// OnScroll reports a scroll event on the viewport.
func (r *Restorer) OnScroll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.recordPending {
		return
	}
	r.recordPending = true
	key := r.hist.CurrentEntryKey()
	r.cancelRecord = r.frames.RequestFrame(func() {
		r.mu.Lock()
		r.recordPending = false
		r.cancelRecord = nil
		r.mu.Unlock()

		// The entry may have changed between the event and the frame; the
		// offset belongs to the entry that was scrolled.
		if r.hist.CurrentEntryKey() != key {
			return
		}
		r.hist.SetCurrentScroll(r.view.ScrollTop())
	})
}

func (r *Restorer) restore(key int64) {
	target := r.hist.Current()
	if target.Key != key {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.cancelRestore != nil {
		r.cancelRestore()
	}
	if r.cancelRecord != nil {
		// A pending record belongs to the entry being left.
		r.cancelRecord()
		r.cancelRecord = nil
		r.recordPending = false
	}
	r.mu.Unlock()

	r.view.SetScrollTop(target.ScrollTop)

	cancel := r.frames.RequestFrame(func() {
		if r.hist.CurrentEntryKey() != key {
			return
		}
		r.view.SetScrollTop(target.ScrollTop)
	})

	r.mu.Lock()
	r.cancelRestore = cancel
	r.mu.Unlock()
}

// Close stops restoring and drops pending frame work.
func (r *Restorer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.cancelRecord != nil {
		r.cancelRecord()
	}
	if r.cancelRestore != nil {
		r.cancelRestore()
	}
	r.mu.Unlock()
	r.unsubscribe()
}
