package bridge

import (
	"context"
	"sync"

	"github.com/roach88/benrt/internal/events"
)

// eventQueue is an unbounded FIFO between the push handlers and the Run
// loop. Handlers never block on a slow store.
//
// The queue also counts outstanding work: every enqueued event and every
// hold stays outstanding until released, and waitIdle blocks until the count
// is zero.
type eventQueue struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
	signal chan struct{} // buffered, size 1

	outstanding int
	idle        chan struct{} // closed when outstanding drops to zero
}

func newEventQueue() *eventQueue {
	idle := make(chan struct{})
	close(idle)
	return &eventQueue{
		events: make([]events.Event, 0, 64),
		signal: make(chan struct{}, 1),
		idle:   idle,
	}
}

// enqueue adds e to the back of the queue. It returns false once the queue
// is closed.
func (q *eventQueue) enqueue(e events.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	q.holdLocked()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue removes the front event without blocking. The caller must
// release it when done.
func (q *eventQueue) tryDequeue() (events.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return events.Event{}, false
	}
	e := q.events[0]
	q.events[0] = events.Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// wait signals that events may be available. The channel is closed with
// the queue.
func (q *eventQueue) wait() <-chan struct{} {
	return q.signal
}

// drained reports whether the queue is closed and empty.
func (q *eventQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// close stops accepting events and releases the ones still queued.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for range q.events {
		q.releaseLocked()
	}
	clear(q.events)
	q.events = q.events[:0]
	close(q.signal)
}

func (q *eventQueue) hold() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.holdLocked()
}

func (q *eventQueue) holdLocked() {
	if q.outstanding == 0 {
		q.idle = make(chan struct{})
	}
	q.outstanding++
}

func (q *eventQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked()
}

func (q *eventQueue) releaseLocked() {
	if q.outstanding == 0 {
		return
	}
	q.outstanding--
	if q.outstanding == 0 {
		close(q.idle)
	}
}

// waitIdle blocks until nothing is outstanding or ctx is done.
func (q *eventQueue) waitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
