// Package observable implements the minimal state container every runtime
// store is built on: a value, an updater-based Set, and selector
// subscriptions that only fire when their projected slice changes.
package observable

import (
	"sync"
)

// Store holds a value of type T and notifies subscribers on change.
//
// Every accepted update bumps an internal version. Notifications are delivered
// outside the store lock, each carrying the version it was produced at; a
// subscription never applies a version older than one it has already seen, so
// concurrent writers cannot make a listener observe state going backwards.
//
// Thread-safety: all methods are safe for concurrent use. Listeners may call
// Set re-entrantly.
type Store[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	nextID  uint64
	subs    map[uint64]*subscription[T]
	order   []uint64
}

type subscription[T any] struct {
	mu       sync.Mutex
	version  uint64
	closed   bool
	draining bool
	pending  []T
	deliver  func(T)
}

// New creates a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		value: initial,
		subs:  make(map[uint64]*subscription[T]),
	}
}

// Get returns the current value.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Version returns the number of accepted updates so far.
func (s *Store[T]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Set replaces the value with update(current) and notifies subscribers.
// update runs under the store lock and must not call back into the store.
func (s *Store[T]) Set(update func(prev T) T) {
	s.Modify(func(prev T) (T, bool) {
		return update(prev), true
	})
}

// Modify is Set with an opt-out: when update reports false the value is left
// untouched and no notification is sent. Modify reports whether the update
// was applied. Because update runs under the lock, Modify doubles as a
// compare-and-set.
func (s *Store[T]) Modify(update func(prev T) (T, bool)) bool {
	s.mu.Lock()
	next, ok := update(s.value)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.value = next
	s.version++
	version := s.version
	subs := s.snapshotLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.notify(version, next)
	}
	return true
}

func (s *Store[T]) snapshotLocked() []*subscription[T] {
	subs := make([]*subscription[T], 0, len(s.order))
	for _, id := range s.order {
		subs = append(subs, s.subs[id])
	}
	return subs
}

// notify queues value for delivery. Whichever caller finds the queue idle
// drains it, so a listener is never invoked concurrently with itself and a
// nested Set from inside a listener is delivered after the listener returns.
func (sub *subscription[T]) notify(version uint64, value T) {
	sub.mu.Lock()
	if sub.closed || version <= sub.version {
		sub.mu.Unlock()
		return
	}
	sub.version = version
	sub.pending = append(sub.pending, value)
	if sub.draining {
		sub.mu.Unlock()
		return
	}
	sub.draining = true
	for len(sub.pending) > 0 && !sub.closed {
		next := sub.pending[0]
		sub.pending = sub.pending[1:]
		sub.mu.Unlock()
		sub.deliver(next)
		sub.mu.Lock()
	}
	sub.pending = nil
	sub.draining = false
	sub.mu.Unlock()
}

// add registers sub. seed, when set, sees the value sub starts from; it runs
// under the store lock so no update can fall between seeding and delivery.
func (s *Store[T]) add(sub *subscription[T], seed func(T)) func() {
	s.mu.Lock()
	if seed != nil {
		seed(s.value)
	}
	s.nextID++
	id := s.nextID
	sub.version = s.version
	s.subs[id] = sub
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.closed = true
			sub.mu.Unlock()

			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of live subscriptions.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// SubscribeAll registers listener for every accepted update.
// The returned function unsubscribes; it is safe to call more than once.
func (s *Store[T]) SubscribeAll(listener func(T)) func() {
	return s.add(&subscription[T]{deliver: listener}, nil)
}

// Subscribe registers a projection of the store's value. listener receives
// the new and previous projections and is only called when the projection
// changed by ==.
func Subscribe[T any, S comparable](s *Store[T], selector func(T) S, listener func(next, prev S)) func() {
	return SubscribeFunc(s, selector, Equal[S], listener)
}

// SubscribeFunc is Subscribe with a caller-supplied equality check, for
// projections that are not comparable (slices, maps, structs holding them).
func SubscribeFunc[T, S any](s *Store[T], selector func(T) S, equal func(a, b S) bool, listener func(next, prev S)) func() {
	var (
		mu   sync.Mutex
		last S
	)
	return s.add(&subscription[T]{deliver: func(v T) {
		next := selector(v)
		mu.Lock()
		if equal(last, next) {
			mu.Unlock()
			return
		}
		prev := last
		last = next
		mu.Unlock()
		listener(next, prev)
	}}, func(v T) { last = selector(v) })
}

// Equal is the default equality for comparable projections.
func Equal[S comparable](a, b S) bool {
	return a == b
}
