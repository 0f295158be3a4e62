// Package clock provides the two notions of time the runtime relies on.
//
// Seq is a monotonic logical counter used for identities that must only ever
// increase (history entry keys, store versions, cache generations). Clock is
// the wall-clock and timer abstraction every timing-sensitive component takes
// so that tests can drive cooldowns, idle gaps and cache deadlines by hand.
package clock

import (
	"sync/atomic"
	"time"
)

// Seq is a monotonic logical counter.
//
// Thread-safety: Seq is safe for concurrent use (atomic operations).
type Seq struct {
	n atomic.Int64
}

// NewSeq creates a counter starting at 0. The first Next returns 1.
func NewSeq() *Seq {
	return &Seq{}
}

// NewSeqAt creates a counter starting at a specific value.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next returns the next value and increments the counter.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}

// Current returns the current value without incrementing.
func (s *Seq) Current() int64 {
	return s.n.Load()
}

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

// Clock is the source of wall time and timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the Clock backed by package time.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// OrReal returns c, or Real when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
