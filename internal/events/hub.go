package events

import (
	"slices"
	"sync"
)

// Handler receives one event.
type Handler func(Event)

// Subscriber is a source of push events.
type Subscriber interface {
	// Subscribe registers h for topic and returns a function that removes it.
	Subscribe(topic Topic, h Handler) (unsubscribe func())
}

// Hub is an in-process Subscriber. Publish delivers synchronously, in
// subscription order, on the publishing goroutine.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Topic][]hubSub
}

type hubSub struct {
	id uint64
	h  Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[Topic][]hubSub)}
}

// Subscribe implements Subscriber.
func (h *Hub) Subscribe(topic Topic, fn Handler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[topic] = append(h.subs[topic], hubSub{id: id, h: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.subs[topic] = slices.DeleteFunc(h.subs[topic], func(s hubSub) bool {
				return s.id == id
			})
		})
	}
}

// Publish delivers e to the handlers subscribed to e.Topic.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	subs := slices.Clone(h.subs[e.Topic])
	h.mu.Unlock()
	for _, s := range subs {
		s.h(e)
	}
}

// Count returns the number of handlers subscribed to topic.
func (h *Hub) Count(topic Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Total returns the number of handlers across all topics.
func (h *Hub) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}
