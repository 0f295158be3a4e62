package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	c := NewFakeClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())
}

func TestFakeClock_AdvanceMovesNow(t *testing.T) {
	c := NewFakeClock(time.Time{})
	c.Advance(150 * time.Millisecond)
	assert.Equal(t, Epoch.Add(150*time.Millisecond), c.Now())
}

func TestFakeClock_TimersFireInDeadlineOrder(t *testing.T) {
	c := NewFakeClock(time.Time{})
	var order []string
	var firedAt []time.Duration

	c.AfterFunc(30*time.Millisecond, func() {
		order = append(order, "b")
		firedAt = append(firedAt, c.Now().Sub(Epoch))
	})
	c.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "a")
		firedAt = append(firedAt, c.Now().Sub(Epoch))
	})
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	c.AfterFunc(time.Second, func() { order = append(order, "late") })

	c.Advance(50 * time.Millisecond)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}, firedAt)
	assert.Equal(t, 1, c.Pending())
}

func TestFakeClock_StopPreventsFiring(t *testing.T) {
	c := NewFakeClock(time.Time{})
	fired := false
	timer := c.AfterFunc(10*time.Millisecond, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_NestedTimersFireWithinSameAdvance(t *testing.T) {
	c := NewFakeClock(time.Time{})
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(16*time.Millisecond, tick)
	}
	c.AfterFunc(16*time.Millisecond, tick)

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, c.Pending())
}
