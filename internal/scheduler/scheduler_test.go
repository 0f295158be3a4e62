package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/benrt/internal/testutil"
)

func TestFrames_BatchesRequestsIntoOneFrame(t *testing.T) {
	clk := testutil.NewFakeClock(time.Time{})
	f := NewFrames(clk, 0)

	var order []int
	f.RequestFrame(func() { order = append(order, 1) })
	f.RequestFrame(func() { order = append(order, 2) })
	assert.Equal(t, 1, clk.Pending(), "one timer per frame")

	clk.Advance(DefaultFrameInterval - time.Millisecond)
	assert.Empty(t, order)

	clk.Advance(time.Millisecond)
	assert.Equal(t, []int{1, 2}, order)
}

func TestFrames_Cancel(t *testing.T) {
	clk := testutil.NewFakeClock(time.Time{})
	f := NewFrames(clk, 10*time.Millisecond)

	ran := false
	cancel := f.RequestFrame(func() { ran = true })
	cancel()
	clk.Advance(time.Second)
	assert.False(t, ran)
}

func TestFrames_RequestDuringFlushRunsNextFrame(t *testing.T) {
	clk := testutil.NewFakeClock(time.Time{})
	f := NewFrames(clk, 10*time.Millisecond)

	var frames []time.Duration
	f.RequestFrame(func() {
		frames = append(frames, clk.Now().Sub(testutil.Epoch))
		f.RequestFrame(func() {
			frames = append(frames, clk.Now().Sub(testutil.Epoch))
		})
	})

	clk.Advance(30 * time.Millisecond)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, frames)
}

type fakeIdle struct {
	queued []func()
}

func (f *fakeIdle) RequestIdle(fn func()) func() {
	f.queued = append(f.queued, fn)
	return func() {}
}

func TestIdle_FallbackDelayAfterFrame(t *testing.T) {
	clk := testutil.NewFakeClock(time.Time{})
	idle := NewIdle(NewFrames(clk, 10*time.Millisecond), nil, clk, 100*time.Millisecond)

	var ranAt time.Duration
	idle.Run(func() { ranAt = clk.Now().Sub(testutil.Epoch) })

	clk.Advance(time.Second)
	assert.Equal(t, 110*time.Millisecond, ranAt)
}

func TestIdle_UsesNativeProvider(t *testing.T) {
	clk := testutil.NewFakeClock(time.Time{})
	native := &fakeIdle{}
	idle := NewIdle(NewFrames(clk, 10*time.Millisecond), native, clk, 0)

	ran := false
	idle.Run(func() { ran = true })
	clk.Advance(10 * time.Millisecond)
	assert.False(t, ran)
	assert.Len(t, native.queued, 1)

	native.queued[0]()
	assert.True(t, ran)
}

func TestIdle_CancelBeforeAndAfterFrame(t *testing.T) {
	clk := testutil.NewFakeClock(time.Time{})
	idle := NewIdle(NewFrames(clk, 10*time.Millisecond), nil, clk, 50*time.Millisecond)

	ran := 0
	cancel := idle.Run(func() { ran++ })
	cancel()

	cancelLater := idle.Run(func() { ran++ })
	clk.Advance(20 * time.Millisecond)
	cancelLater()
	clk.Advance(time.Second)

	assert.Equal(t, 0, ran)
}
