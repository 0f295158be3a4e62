// Package gesture turns raw touch, wheel, keyboard and mouse-button input
// into discrete back/forward navigations against a history stack.
//
// ARCHITECTURE:
//
// Every input pipeline funnels into TriggerNavigation, the single gate that
// enforces the shared cooldown window. A trigger inside the cooldown after
// the last accepted trigger is dropped silently, whatever its source.
//
// Touch pipeline: a discrete, bounded gesture. One active pointer is tracked
// (a second pointer aborts tracking); on release the gesture is accepted only
// if it was quick enough, long enough, and predominantly horizontal.
// Finger moving right navigates back, left navigates forward.
//
// Wheel pipeline: a continuous stream segmented heuristically. Horizontal
// deltas above the noise floor that dominate the vertical delta accumulate;
// direction reversal or an idle gap restarts the accumulator. Crossing the
// threshold triggers once and then suppresses input until the stream goes
// idle, so the momentum tail of the same physical swipe cannot re-trigger.
// Positive (rightward scroll) navigates forward, negative navigates back.
//
// A fast direction reversal right after a wheel trigger falls inside the
// suppression window and is dropped rather than queued.
package gesture
