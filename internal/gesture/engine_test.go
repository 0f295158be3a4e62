package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/benrt/internal/history"
	"github.com/roach88/benrt/internal/testutil"
)

// setup returns an engine over a history positioned in the middle of five
// entries so both directions are available.
func setup(t *testing.T) (*Engine, *history.Store, *testutil.FakeClock) {
	t.Helper()
	h := history.New("/0")
	for _, p := range []string{"/1", "/2", "/3", "/4"} {
		h.Push(p)
	}
	h.Go(-2)
	require.Equal(t, 2, h.State().Index)

	clk := testutil.NewFakeClock(time.Time{})
	return New(h, WithClock(clk)), h, clk
}

func touch(e *Engine, clk *testutil.FakeClock, dx, dy float64, d time.Duration) bool {
	e.PointerDown(1, 100, 100)
	clk.Advance(d)
	return e.PointerUp(1, 100+dx, 100+dy)
}

func TestTouch_Acceptance(t *testing.T) {
	tests := []struct {
		name     string
		dx, dy   float64
		duration time.Duration
		want     bool
		index    int
	}{
		{"right swipe goes back", 90, 10, 300 * time.Millisecond, true, 1},
		{"left swipe goes forward", -90, 10, 300 * time.Millisecond, true, 3},
		{"below distance threshold", 50, 0, 300 * time.Millisecond, false, 2},
		{"too slow", 200, 0, 800 * time.Millisecond, false, 2},
		{"not horizontal enough", 90, 70, 300 * time.Millisecond, false, 2},
		{"exactly at distance threshold", 84, 0, 100 * time.Millisecond, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, h, clk := setup(t)
			assert.Equal(t, tt.want, touch(e, clk, tt.dx, tt.dy, tt.duration))
			assert.Equal(t, tt.index, h.State().Index)
		})
	}
}

func TestTouch_MultiTouchAborts(t *testing.T) {
	e, h, clk := setup(t)

	e.PointerDown(1, 0, 0)
	e.PointerDown(2, 10, 0)
	clk.Advance(100 * time.Millisecond)
	assert.False(t, e.PointerUp(2, 200, 0))
	assert.False(t, e.PointerUp(1, 200, 0))
	assert.Equal(t, 2, h.State().Index)

	// A fresh single touch works again once all pointers are up.
	assert.True(t, touch(e, clk, 120, 0, 100*time.Millisecond))
}

func TestTouch_CancelDropsGesture(t *testing.T) {
	e, h, clk := setup(t)

	e.PointerDown(1, 0, 0)
	clk.Advance(50 * time.Millisecond)
	e.PointerCancel(1)
	assert.False(t, e.PointerUp(1, 200, 0))
	assert.Equal(t, 2, h.State().Index)
}

func TestCooldown_DropsSecondTrigger(t *testing.T) {
	e, h, clk := setup(t)

	assert.True(t, touch(e, clk, 120, 0, 100*time.Millisecond))
	clk.Advance(200 * time.Millisecond)
	assert.False(t, touch(e, clk, 120, 0, 100*time.Millisecond), "inside cooldown")
	assert.Equal(t, 1, h.State().Index)

	clk.Advance(200 * time.Millisecond)
	assert.True(t, e.TriggerNavigation(Forward), "cooldown elapsed")
	assert.Equal(t, 2, h.State().Index)
}

func TestCooldown_SharedAcrossSources(t *testing.T) {
	e, h, clk := setup(t)

	assert.True(t, e.HandleMouseButton(MouseButtonBack))
	clk.Advance(100 * time.Millisecond)
	assert.False(t, e.HandleKey(KeyArrowRight, true))
	assert.False(t, touch(e, clk, -120, 0, 100*time.Millisecond))
	assert.Equal(t, 1, h.State().Index)
}

func TestTrigger_BoundaryDoesNotConsumeCooldown(t *testing.T) {
	h := history.New("/only")
	h.Push("/second")
	clk := testutil.NewFakeClock(time.Time{})
	e := New(h, WithClock(clk))

	assert.False(t, e.TriggerNavigation(Forward), "already at the newest entry")
	assert.True(t, e.TriggerNavigation(Back), "cooldown untouched by the dropped trigger")
	assert.False(t, e.TriggerNavigation(Direction(0)))
}

func TestWheel_Segmentation(t *testing.T) {
	e, h, clk := setup(t)

	assert.False(t, e.Wheel(50, 0))
	clk.Advance(40 * time.Millisecond)
	assert.False(t, e.Wheel(60, 0))
	clk.Advance(40 * time.Millisecond)
	assert.True(t, e.Wheel(70, 0), "cumulative 180 crosses 160")
	assert.Equal(t, 3, h.State().Index)

	clk.Advance(50 * time.Millisecond)
	assert.False(t, e.Wheel(200, 0), "momentum tail inside the idle window")
	assert.Equal(t, 3, h.State().Index)
}

func TestWheel_MomentumExtendsSuppression(t *testing.T) {
	e, h, clk := setup(t)

	e.Wheel(100, 0)
	clk.Advance(10 * time.Millisecond)
	require.True(t, e.Wheel(100, 0))

	// Keep feeding momentum every 100ms for well past the cooldown.
	for i := 0; i < 10; i++ {
		clk.Advance(100 * time.Millisecond)
		assert.False(t, e.Wheel(100, 0))
	}
	assert.Equal(t, 3, h.State().Index)

	// After a real idle gap the next gesture starts from zero.
	clk.Advance(300 * time.Millisecond)
	assert.False(t, e.Wheel(100, 0))
	clk.Advance(10 * time.Millisecond)
	assert.True(t, e.Wheel(100, 0))
	assert.Equal(t, 4, h.State().Index)
}

func TestWheel_NegativeGoesBack(t *testing.T) {
	e, h, clk := setup(t)
	e.Wheel(-90, 0)
	clk.Advance(10 * time.Millisecond)
	assert.True(t, e.Wheel(-90, 0))
	assert.Equal(t, 1, h.State().Index)
}

func TestWheel_IgnoresNoiseAndVertical(t *testing.T) {
	e, h, clk := setup(t)

	for i := 0; i < 50; i++ {
		clk.Advance(5 * time.Millisecond)
		e.Wheel(6, 0)     // at the noise floor
		e.Wheel(100, 100) // vertical dominates
	}
	assert.Equal(t, 2, h.State().Index)
}

func TestWheel_DirectionReversalResets(t *testing.T) {
	e, h, clk := setup(t)

	e.Wheel(150, 0)
	clk.Advance(10 * time.Millisecond)
	assert.False(t, e.Wheel(-20, 0), "reversal restarts from zero")
	clk.Advance(10 * time.Millisecond)
	assert.False(t, e.Wheel(20, 0), "and again")
	assert.Equal(t, 2, h.State().Index)
}

func TestWheel_IdleGapResets(t *testing.T) {
	e, h, clk := setup(t)

	e.Wheel(150, 0)
	clk.Advance(250 * time.Millisecond)
	assert.False(t, e.Wheel(20, 0))
	assert.Equal(t, 2, h.State().Index)
}

func TestHandleKey(t *testing.T) {
	e, h, clk := setup(t)

	assert.False(t, e.HandleKey(KeyArrowLeft, false), "plain arrow is not navigation")
	assert.True(t, e.HandleKey(KeyArrowLeft, true))
	assert.Equal(t, 1, h.State().Index)

	clk.Advance(time.Second)
	assert.True(t, e.HandleKey(KeyBrowserForward, false))
	assert.Equal(t, 2, h.State().Index)
	assert.False(t, e.HandleKey("Enter", true))
}

func TestHandleMouseButton(t *testing.T) {
	e, h, clk := setup(t)
	assert.False(t, e.HandleMouseButton(0))
	assert.True(t, e.HandleMouseButton(MouseButtonForward))
	clk.Advance(time.Second)
	assert.True(t, e.HandleMouseButton(MouseButtonBack))
	assert.Equal(t, 2, h.State().Index)
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "back", Back.String())
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "unknown", Direction(9).String())
}
