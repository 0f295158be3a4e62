package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return sc
}

func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		sc, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(sc.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, sc)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectMismatchFailsResult(t *testing.T) {
	sc := mustParse(t, `
name: mismatch
description: back at the first entry is rejected, not ok
flow:
  - action: history.back
    expect: {outcome: ok}
  - action: history.push
    args: {href: /albums}
    expect: {outcome: ok, result: /artists}
`)
	result, err := Run(sc)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "flow[0] history.back: expected outcome ok, got rejected")
	assert.Contains(t, result.Errors[1], "expected result /artists, got /albums")
}

func TestRun_BadArgsAbort(t *testing.T) {
	sc := mustParse(t, `
name: bad-args
description: misspelled argument
flow:
  - action: history.push
    args: {hreff: /albums}
`)
	_, err := Run(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow[0] history.push: args:")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	sc := mustParse(t, `
name: setup-fails
description: unknown track in the seeded queue
setup:
  - action: backend.set-queue
    args: {tracks: [99], start: 0}
flow:
  - action: playback.play
`)
	_, err := Run(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] backend.set-queue: track 99 not found")
}

func TestRun_ConfigOverridesGestureCooldown(t *testing.T) {
	sc := mustParse(t, `
name: short-cooldown
description: a 100ms cooldown lets a second key through after 150ms
initial_href: /a
config:
  gesture:
    cooldown: 100ms
flow:
  - action: history.push
    args: {href: /b}
  - action: history.push
    args: {href: /c}
  - action: gesture.key
    args: {key: BrowserBack}
    expect: {outcome: ok, result: /b}
  - action: clock.advance
    args: {ms: 150}
  - action: gesture.key
    args: {key: BrowserBack}
    expect: {outcome: ok, result: /a}
`)
	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidConfig(t *testing.T) {
	sc := mustParse(t, `
name: bad-config
description: a zero cooldown fails validation
config:
  gesture:
    cooldown: 0s
flow:
  - action: history.back
`)
	_, err := Run(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gesture.cooldown")
}

func TestRun_LocalThemeWinsAndHostFollows(t *testing.T) {
	sc := mustParse(t, `
name: theme
description: the persisted preference beats the snapshot and system follows the host
setup:
  - action: backend.theme-mode
    args: {mode: dark}
  - action: prefs.theme-mode
    args: {mode: system}
flow:
  - action: host.appearance
    args: {dark: true}
    expect: {outcome: ok, result: dark}
  - action: theme.set-mode
    args: {mode: light}
    expect: {outcome: ok, result: light}
  - action: host.appearance
    args: {dark: false}
    expect: {outcome: ok, result: light}
assertions:
  - type: final_state
    path: theme
    expect: {mode: light, resolved: light, error: ""}
`)
	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BackendFailureSurfacesAndClears(t *testing.T) {
	sc := mustParse(t, `
name: folder-errors
description: a failed add surfaces its message, the next success clears it
flow:
  - action: backend.fail-next
    args: {method: AddWatchedRoot, message: disk offline}
  - action: scan.add-root
    args: {path: /music}
    expect: {outcome: error, error: disk offline}
  - action: scan.add-root
    args: {path: "  "}
    expect: {outcome: error, error: folder path is required}
  - action: scan.add-root
    args: {path: " /music "}
    expect: {outcome: ok}
assertions:
  - type: final_state
    path: scan
    expect: {roots: [/music], error: ""}
  - type: final_state
    path: calls.AddWatchedRoot
    expect: 2
`)
	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_PlaybackQueueOps(t *testing.T) {
	sc := mustParse(t, `
name: queue
description: queue edits and repeat cycling
flow:
  - action: playback.set-queue
    args: {tracks: [1, 2, 3], start: 0}
  - action: playback.append
    args: {tracks: [6]}
  - action: playback.remove
    args: {index: 1}
  - action: playback.select
    args: {index: 2}
  - action: playback.cycle-repeat
  - action: playback.next
    expect: {outcome: ok}
  - action: playback.repeat
    args: {mode: sometimes}
    expect: {outcome: error, error: invalid repeat mode}
  - action: playback.pause
assertions:
  - type: final_state
    path: playback
    expect:
      queue: [1, 3, 6]
      index: 0
      track: Dawn
      repeat: all
      status: paused
  - type: final_state
    path: theme.cover
    expect: "/covers/Aurora Fields-First Light.jpg"
  - type: final_state
    path: calls.SetRepeatMode
    expect: 1
`)
	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_LibraryReads(t *testing.T) {
	sc := mustParse(t, `
name: library
description: reads go through the cache once per key until invalidated
flow:
  - action: library.artists
    expect: {outcome: ok, result: {total: 2, names: [Aurora Fields, Bellwether]}}
  - action: library.artists
  - action: library.tracks
    args: {artist: Bellwether}
    expect: {outcome: ok, result: {titles: [Signal, Static]}}
  - action: library.album
    args: {title: Tides, artist: Aurora Fields}
    expect: {outcome: ok, result: {title: Tides, tracks: [Harbor]}}
  - action: library.artist
    args: {name: Aurora Fields}
    expect: {outcome: ok, result: {albums: [First Light, Tides]}}
  - action: cache.invalidate
    args: {prefix: [library, artists]}
    expect: {outcome: ok, result: 1}
  - action: library.artists
assertions:
  - type: final_state
    path: calls.ListArtists
    expect: 2
  - type: trace_count
    action: library.artists
    count: 3
`)
	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_MetricsCollected(t *testing.T) {
	sc := mustParse(t, `
name: metrics
description: bridge and cache counters are gathered
flow:
  - action: scan.trigger
  - action: backend.finish-scan
    args: {status: failed}
`)
	result, err := New().Run(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, 2.0, result.Metrics["benrt_bridge_events_total"])
	assert.Equal(t, 0.0, result.Metrics["benrt_bridge_scan_invalidations_total"])

	scan, ok := result.State["scan"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "failed", scan["last_status"])
}
