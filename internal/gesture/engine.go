package gesture

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/benrt/internal/clock"
)

// Direction is a navigation intent.
type Direction int

const (
	// Back moves to the previous history entry.
	Back Direction = iota + 1
	// Forward moves to the next history entry.
	Forward
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Back:
		return "back"
	case Forward:
		return "forward"
	default:
		return "unknown"
	}
}

// Navigator is the history surface the engine drives.
// *history.Store implements it.
type Navigator interface {
	Back() bool
	Forward() bool
	CanGoBack() bool
	CanGoForward() bool
}

// Config holds the recognition thresholds.
type Config struct {
	// Cooldown is the minimum time between two accepted triggers.
	Cooldown time.Duration `yaml:"cooldown"`

	// TouchMaxDuration rejects touch gestures that take longer.
	TouchMaxDuration time.Duration `yaml:"touchMaxDuration"`
	// TouchMinDistance is the minimum horizontal travel in px.
	TouchMinDistance float64 `yaml:"touchMinDistance"`
	// TouchDominance is how many times |dx| must exceed |dy|.
	TouchDominance float64 `yaml:"touchDominance"`

	// WheelNoiseFloor ignores horizontal deltas at or below it.
	WheelNoiseFloor float64 `yaml:"wheelNoiseFloor"`
	// WheelDominance is how many times |deltaX| must exceed |deltaY|.
	WheelDominance float64 `yaml:"wheelDominance"`
	// WheelThreshold is the accumulated |deltaX| that triggers.
	WheelThreshold float64 `yaml:"wheelThreshold"`
	// WheelIdleReset is the gap that ends a wheel gesture.
	WheelIdleReset time.Duration `yaml:"wheelIdleReset"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Cooldown:         420 * time.Millisecond,
		TouchMaxDuration: 750 * time.Millisecond,
		TouchMinDistance: 84,
		TouchDominance:   1.35,
		WheelNoiseFloor:  6,
		WheelDominance:   1.2,
		WheelThreshold:   160,
		WheelIdleReset:   220 * time.Millisecond,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default thresholds.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithClock sets the time source. Default: clock.Real.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = clock.OrReal(c)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine recognizes navigation gestures.
//
// Thread-safety: all methods are safe for concurrent use; pipeline state is
// guarded by a single mutex and navigation happens outside it.
type Engine struct {
	nav    Navigator
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	gate *rate.Limiter

	mu sync.Mutex

	// touch pipeline
	pointersDown int
	tracking     bool
	pointerID    int64
	startX       float64
	startY       float64
	startAt      time.Time

	// wheel pipeline
	wheelAccum      float64
	wheelDirection  int
	lastWheelAt     time.Time
	wheelNeedsReset bool
}

// New creates an engine driving nav.
func New(nav Navigator, opts ...Option) *Engine {
	e := &Engine{
		nav:    nav,
		cfg:    DefaultConfig(),
		clock:  clock.Real{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	// One token, refilled once per cooldown: an accepted trigger empties the
	// bucket and nothing passes until the cooldown has fully elapsed.
	e.gate = rate.NewLimiter(rate.Every(e.cfg.Cooldown), 1)
	return e
}

// Config returns the thresholds in effect.
func (e *Engine) Config() Config {
	return e.cfg
}

// TriggerNavigation is the shared gate. It reports whether a navigation
// happened. A trigger the history cannot honor (already at that end) is
// dropped without consuming the cooldown.
func (e *Engine) TriggerNavigation(dir Direction) bool {
	switch dir {
	case Back:
		if !e.nav.CanGoBack() {
			return false
		}
	case Forward:
		if !e.nav.CanGoForward() {
			return false
		}
	default:
		return false
	}

	if !e.gate.AllowN(e.clock.Now(), 1) {
		e.logger.Debug("navigation dropped: cooldown", "direction", dir.String())
		return false
	}

	var moved bool
	if dir == Back {
		moved = e.nav.Back()
	} else {
		moved = e.nav.Forward()
	}
	e.logger.Debug("navigation triggered", "direction", dir.String(), "moved", moved)
	return moved
}

// PointerDown starts tracking a touch. A second concurrent pointer aborts the
// gesture in progress.
func (e *Engine) PointerDown(id int64, x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pointersDown++
	if e.pointersDown > 1 {
		e.tracking = false
		return
	}
	e.tracking = true
	e.pointerID = id
	e.startX, e.startY = x, y
	e.startAt = e.clock.Now()
}

// PointerCancel ends a pointer without evaluating it.
func (e *Engine) PointerCancel(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.releasePointerLocked()
	if e.tracking && e.pointerID == id {
		e.tracking = false
	}
}

// PointerUp ends a pointer and, if it was the tracked single touch,
// evaluates the gesture. It reports whether a navigation happened.
func (e *Engine) PointerUp(id int64, x, y float64) bool {
	e.mu.Lock()
	e.releasePointerLocked()
	if !e.tracking || e.pointerID != id {
		e.mu.Unlock()
		return false
	}
	e.tracking = false
	elapsed := e.clock.Now().Sub(e.startAt)
	dx, dy := x-e.startX, y-e.startY
	e.mu.Unlock()

	dir, ok := e.classifyTouch(elapsed, dx, dy)
	if !ok {
		return false
	}
	return e.TriggerNavigation(dir)
}

func (e *Engine) releasePointerLocked() {
	if e.pointersDown > 0 {
		e.pointersDown--
	}
}

// classifyTouch applies the touch acceptance rules.
func (e *Engine) classifyTouch(elapsed time.Duration, dx, dy float64) (Direction, bool) {
	absX, absY := math.Abs(dx), math.Abs(dy)
	switch {
	case elapsed > e.cfg.TouchMaxDuration:
		return 0, false
	case absX < e.cfg.TouchMinDistance:
		return 0, false
	case absX < e.cfg.TouchDominance*absY:
		return 0, false
	}
	if dx > 0 {
		return Back, true
	}
	return Forward, true
}

// Wheel feeds one wheel event. It reports whether a navigation happened.
func (e *Engine) Wheel(deltaX, deltaY float64) bool {
	dir, ok := e.accumulateWheel(deltaX, deltaY)
	if !ok {
		return false
	}
	return e.TriggerNavigation(dir)
}

func (e *Engine) accumulateWheel(deltaX, deltaY float64) (Direction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	idle := e.lastWheelAt.IsZero() || now.Sub(e.lastWheelAt) > e.cfg.WheelIdleReset
	e.lastWheelAt = now

	if e.wheelNeedsReset {
		if !idle {
			return 0, false
		}
		e.wheelNeedsReset = false
		e.wheelAccum = 0
		e.wheelDirection = 0
	}

	absX, absY := math.Abs(deltaX), math.Abs(deltaY)
	if absX <= e.cfg.WheelNoiseFloor || absX < e.cfg.WheelDominance*absY {
		return 0, false
	}

	sign := 1
	if deltaX < 0 {
		sign = -1
	}
	if sign != e.wheelDirection || idle {
		e.wheelAccum = 0
	}
	e.wheelDirection = sign
	e.wheelAccum += deltaX

	if math.Abs(e.wheelAccum) < e.cfg.WheelThreshold {
		return 0, false
	}

	e.wheelAccum = 0
	e.wheelNeedsReset = true
	if sign > 0 {
		return Forward, true
	}
	return Back, true
}

// Key names recognized by HandleKey.
const (
	KeyArrowLeft      = "ArrowLeft"
	KeyArrowRight     = "ArrowRight"
	KeyBrowserBack    = "BrowserBack"
	KeyBrowserForward = "BrowserForward"
)

// HandleKey maps Alt+Left/Alt+Right and the dedicated browser keys to
// navigations through the cooldown gate.
func (e *Engine) HandleKey(key string, alt bool) bool {
	switch {
	case key == KeyBrowserBack, alt && key == KeyArrowLeft:
		return e.TriggerNavigation(Back)
	case key == KeyBrowserForward, alt && key == KeyArrowRight:
		return e.TriggerNavigation(Forward)
	default:
		return false
	}
}

// Mouse buttons recognized by HandleMouseButton (DOM MouseEvent.button).
const (
	MouseButtonBack    = 3
	MouseButtonForward = 4
)

// HandleMouseButton maps the auxiliary back/forward mouse buttons to
// navigations through the cooldown gate.
func (e *Engine) HandleMouseButton(button int) bool {
	switch button {
	case MouseButtonBack:
		return e.TriggerNavigation(Back)
	case MouseButtonForward:
		return e.TriggerNavigation(Forward)
	default:
		return false
	}
}
