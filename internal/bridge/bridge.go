// Package bridge routes push events into the domain runtime stores.
//
// Push handlers only enqueue. A single Run loop goroutine applies events in
// arrival order, so stores observe push updates in the order the backend
// sent them. A scanner:progress event with status "completed" additionally
// invalidates the library and statistics reads once, and every terminal
// progress event schedules a background refresh of the scan state.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/events"
	"github.com/roach88/benrt/internal/library"
	"github.com/roach88/benrt/internal/querykey"
	"github.com/roach88/benrt/internal/rpc"
)

var (
	// ErrAlreadyBound is returned by a second Bind.
	ErrAlreadyBound = errors.New("bridge already bound")

	// ErrClosed is returned by Bind after Close.
	ErrClosed = errors.New("bridge closed")
)

// ScanTarget receives scanner:progress events.
type ScanTarget interface {
	ApplyProgress(p rpc.ScanProgress) (terminal bool)
	Refresh(ctx context.Context) error
}

// PlaybackTarget receives queue:state and player:state events. The bool
// results report whether the event was applied.
type PlaybackTarget interface {
	ApplyQueueEvent(q rpc.QueueState) bool
	ApplyPlayerEvent(p rpc.PlayerState) bool
}

// Invalidator marks cached reads stale by key prefix.
type Invalidator interface {
	Invalidate(prefix querykey.Key) int
}

// Bridge is created unbound; Bind starts routing.
type Bridge struct {
	source   events.Subscriber
	scan     ScanTarget
	playback PlaybackTarget
	cache    Invalidator
	prefixes []querykey.Key
	logger   *slog.Logger
	metrics  *metrics

	queue *eventQueue

	mu     sync.Mutex
	bound  bool
	closed bool
	unsubs []func()
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithRegisterer registers the bridge metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bridge) { b.metrics = newMetrics(reg) }
}

// WithInvalidationPrefixes replaces the prefixes invalidated by a completed
// scan. Default: library.ScanInvalidationPrefixes().
func WithInvalidationPrefixes(prefixes ...querykey.Key) Option {
	return func(b *Bridge) { b.prefixes = prefixes }
}

// New creates an unbound bridge.
func New(source events.Subscriber, scan ScanTarget, playback PlaybackTarget, cache Invalidator, opts ...Option) *Bridge {
	b := &Bridge{
		source:   source,
		scan:     scan,
		playback: playback,
		cache:    cache,
		prefixes: library.ScanInvalidationPrefixes(),
		logger:   slog.Default(),
		queue:    newEventQueue(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = newMetrics(nil)
	}
	return b
}

// Bind subscribes to every topic and starts the Run loop. It succeeds once
// per bridge. The loop stops when ctx is done or Close is called.
func (b *Bridge) Bind(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return ErrClosed
	case b.bound:
		return ErrAlreadyBound
	}
	b.bound = true

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	for _, topic := range events.Topics() {
		b.unsubs = append(b.unsubs, b.source.Subscribe(topic, b.enqueue))
	}
	go b.run(runCtx)

	b.logger.Debug("bridge bound", "topics", len(b.unsubs))
	return nil
}

func (b *Bridge) enqueue(e events.Event) {
	if !b.queue.enqueue(e) {
		b.metrics.events.WithLabelValues(e.Topic.String(), outcomeDropped).Inc()
	}
}

// run is the single-writer loop: every store update driven by a push event
// happens on this goroutine.
func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	for {
		if ctx.Err() != nil {
			b.queue.close()
			return
		}
		if e, ok := b.queue.tryDequeue(); ok {
			b.process(ctx, e)
			b.queue.release()
			continue
		}
		select {
		case <-ctx.Done():
			b.queue.close()
			return
		case <-b.queue.wait():
			if b.queue.drained() {
				return
			}
		}
	}
}

func (b *Bridge) process(ctx context.Context, e events.Event) {
	topic := e.Topic.String()
	var applied, ok bool
	switch e.Topic {
	case events.TopicScanProgress:
		var p rpc.ScanProgress
		if p, ok = e.ScanProgress(); ok {
			applied = true
			terminal := b.scan.ApplyProgress(p)
			if p.Status == rpc.ScanCompleted {
				b.invalidate()
			}
			if terminal {
				b.refreshScan(ctx)
			}
		}
	case events.TopicQueueState:
		var q rpc.QueueState
		if q, ok = e.QueueState(); ok {
			applied = b.playback.ApplyQueueEvent(q)
		}
	case events.TopicPlayerState:
		var p rpc.PlayerState
		if p, ok = e.PlayerState(); ok {
			applied = b.playback.ApplyPlayerEvent(p)
		}
	}
	if !ok {
		b.logger.Warn("push event dropped", "topic", topic, "payload", e.Payload)
		b.metrics.events.WithLabelValues(topic, outcomeDropped).Inc()
		return
	}

	outcome := outcomeApplied
	if !applied {
		outcome = outcomeStale
	}
	b.metrics.events.WithLabelValues(topic, outcome).Inc()
	b.logger.Debug("push event processed", "topic", topic, "outcome", outcome)
}

func (b *Bridge) invalidate() {
	n := 0
	for _, prefix := range b.prefixes {
		n += b.cache.Invalidate(prefix)
	}
	b.metrics.invalidations.Inc()
	b.logger.Info("scan completed, library reads invalidated", "entries", n)
}

// refreshScan re-reads the scan state in the background. The refresh counts
// as outstanding work for Drain.
func (b *Bridge) refreshScan(ctx context.Context) {
	b.queue.hold()
	go func() {
		defer b.queue.release()
		err := b.scan.Refresh(ctx)
		switch {
		case err == nil:
			b.metrics.refreshes.WithLabelValues("ok").Inc()
		case apperr.IsCancelled(err):
			b.metrics.refreshes.WithLabelValues("cancelled").Inc()
		default:
			b.metrics.refreshes.WithLabelValues("error").Inc()
			b.logger.Warn("scan refresh after progress failed", "error", err)
		}
	}()
}

// Drain blocks until every event received so far has been processed and
// the refreshes it scheduled have finished.
func (b *Bridge) Drain(ctx context.Context) error {
	return b.queue.waitIdle(ctx)
}

// Close unsubscribes from every topic, stops the loop and waits for it and
// any running refresh. Events still queued are discarded. Close is
// idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsubs := b.unsubs
	b.unsubs = nil
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	b.queue.close()
	if cancel != nil {
		cancel()
		<-done
	}
	b.queue.waitIdle(context.Background())
	b.logger.Debug("bridge closed")
}
