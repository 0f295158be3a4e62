package events

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Loopback publishes in-process emissions to a Hub as if they had arrived
// over the push channel: each payload is encoded to JSON and goes through
// the Decoder, so schema violations are dropped the same way.
type Loopback struct {
	hub     *Hub
	decoder *Decoder
	now     func() time.Time
	logger  *slog.Logger

	dropped atomic.Int64
}

// NewLoopback creates a loopback into hub. A nil now uses time.Now.
func NewLoopback(hub *Hub, decoder *Decoder, now func() time.Time, logger *slog.Logger) *Loopback {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loopback{hub: hub, decoder: decoder, now: now, logger: logger}
}

// Emit encodes payload and publishes it under the wire name.
func (l *Loopback) Emit(name string, payload any) {
	data, err := json.Marshal(payload)
	if err == nil {
		var e Event
		if e, err = l.decoder.Decode(name, data, l.now()); err == nil {
			l.hub.Publish(e)
			return
		}
	}
	l.dropped.Add(1)
	l.logger.Warn("loopback event dropped", "topic", name, "error", err)
}

// Dropped returns how many emissions failed to encode or validate.
func (l *Loopback) Dropped() int64 { return l.dropped.Load() }
