// Package harness runs scripted sessions against the complete runtime.
//
// A scenario is a YAML document naming a sequence of actions: history and
// gesture input, store operations, direct backend changes that produce push
// events, and clock advances. The harness builds a fresh runtime for every
// run and records each flow step in a trace.
//
// # Scenario Format
//
//	name: queue-follows-backend
//	description: Next moves the queue and the palette follows the cover
//	setup:
//	  - action: backend.set-queue
//	    args: {tracks: [1, 5], start: 0}
//	flow:
//	  - action: playback.next
//	    expect: {outcome: ok}
//	assertions:
//	  - type: final_state
//	    path: playback.track
//	    expect: Signal
//
// Steps end with one of three outcomes: ok, rejected (the runtime declined
// without failing, e.g. a gesture inside the cooldown) or error.
//
// # Assertions
//
//   - trace_contains: a step with the action and at least the given args
//   - trace_order: actions first appear in the given order
//   - trace_count: the action appears exactly count times
//   - final_state: the value at a dotted path into the final state
//
// # Deterministic Testing
//
// Every run uses:
//   - a fake clock starting at testutil.Epoch that only moves on clock.advance
//   - the in-memory fake backend, looped back through the event decoder
//   - an in-memory SQLite preference database
//   - frame and idle callbacks that run synchronously
//
// After every step the harness waits for the event bridge to drain and for
// palette work to finish, so traces and final states are reproducible and
// can be compared against golden files.
package harness
