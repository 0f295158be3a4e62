package scanstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/benrt/internal/rpc"
	"github.com/roach88/benrt/internal/testutil"
)

func newStore(t *testing.T) (*Store, *testutil.FakeBackend) {
	t.Helper()
	b := testutil.NewFakeBackend(nil)
	return New(b, nil), b
}

func TestHydrateFromStartup(t *testing.T) {
	s, _ := newStore(t)

	assert.True(t, s.HydrateFromStartup(rpc.ScanStatus{LastIndexed: 10}))
	assert.False(t, s.HydrateFromStartup(rpc.ScanStatus{LastIndexed: 99}))

	st := s.Snapshot()
	assert.True(t, st.HasHydratedFromStartup)
	assert.Equal(t, 10, st.Status.LastIndexed)
}

func TestHydrateFromStartup_KeepsRunningFromProgress(t *testing.T) {
	s, _ := newStore(t)
	assert.False(t, s.ApplyProgress(rpc.ScanProgress{Phase: "indexing", Status: rpc.ScanRunning, Percent: 10}))

	assert.True(t, s.HydrateFromStartup(rpc.ScanStatus{Running: false, LastIndexed: 3}))

	st := s.Snapshot()
	assert.True(t, st.Status.Running, "progress event arrived after the snapshot was taken")
	assert.Equal(t, 3, st.Status.LastIndexed)
	require.NotNil(t, st.LastProgress)
}

func TestRefresh_ReadsRootsAndStatus(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	_, err := b.AddWatchedRoot(ctx, "/music")
	require.NoError(t, err)
	b.SetStatus(rpc.ScanStatus{LastIndexed: 6})

	require.NoError(t, s.Refresh(ctx))

	st := s.Snapshot()
	require.Len(t, st.Roots, 1)
	assert.Equal(t, "/music", st.Roots[0].Path)
	assert.Equal(t, 6, st.Status.LastIndexed)
	assert.False(t, st.IsRefreshing)
}

func TestAddRoot_TrimsAndRereadsRoots(t *testing.T) {
	s, b := newStore(t)
	b.ResetCalls()

	require.NoError(t, s.AddRoot(context.Background(), "  /music/flac  "))

	assert.Equal(t, []string{"AddWatchedRoot", "ListWatchedRoots"}, b.Calls())
	st := s.Snapshot()
	require.Len(t, st.Roots, 1)
	assert.Equal(t, "/music/flac", st.Roots[0].Path)
	assert.False(t, st.IsMutating)
}

func TestAddRoot_BlankPathRejectedLocally(t *testing.T) {
	s, b := newStore(t)
	b.ResetCalls()

	err := s.AddRoot(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.Empty(t, b.Calls())
	assert.Equal(t, "scan.add-root: folder path is required", s.Snapshot().ErrorMessage)
}

func TestAddRoot_FailureKeepsRoots(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddRoot(ctx, "/music"))

	err := s.AddRoot(ctx, "/music")
	require.Error(t, err)

	st := s.Snapshot()
	assert.Len(t, st.Roots, 1)
	assert.Contains(t, st.ErrorMessage, "already watched")
	assert.Equal(t, 1, b.CallCount("ListWatchedRoots"), "no re-read after a failed write")
}

func TestRemoveAndToggleRoot(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddRoot(ctx, "/a"))
	require.NoError(t, s.AddRoot(ctx, "/b"))
	id := s.Snapshot().Roots[0].ID

	require.NoError(t, s.SetRootEnabled(ctx, id, false))
	assert.False(t, s.Snapshot().Roots[0].Enabled)

	require.NoError(t, s.RemoveRoot(ctx, id))
	roots := s.Snapshot().Roots
	require.Len(t, roots, 1)
	assert.Equal(t, "/b", roots[0].Path)
}

func TestTrigger_RereadsStatus(t *testing.T) {
	s, b := newStore(t)
	b.ResetCalls()

	require.NoError(t, s.TriggerFullScan(context.Background()))

	assert.Equal(t, []string{"TriggerFullScan", "GetStatus"}, b.Calls())
	st := s.Snapshot()
	assert.True(t, st.Status.Running)
	assert.Equal(t, "full", st.Status.LastMode)
}

func TestTrigger_ErrorClearedOnNextAttempt(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	b.FailNext("TriggerScan", errors.New("database locked"))

	require.Error(t, s.TriggerScan(ctx))
	assert.Equal(t, "scan.trigger: database locked", s.Snapshot().ErrorMessage)

	require.NoError(t, s.TriggerIncrementalScan(ctx))
	assert.Empty(t, s.Snapshot().ErrorMessage)
}

func TestTrigger_CancelledNotSurfaced(t *testing.T) {
	s, b := newStore(t)
	b.FailNext("TriggerScan", errors.New("scan request aborted"))

	require.Error(t, s.TriggerScan(context.Background()))
	assert.Empty(t, s.Snapshot().ErrorMessage)
}

func TestApplyProgress(t *testing.T) {
	s, _ := newStore(t)

	assert.False(t, s.ApplyProgress(rpc.ScanProgress{Phase: "walk", Percent: 30, Status: rpc.ScanRunning}))
	st := s.Snapshot()
	require.NotNil(t, st.LastProgress)
	assert.Equal(t, 30, st.LastProgress.Percent)
	assert.True(t, st.Status.Running)
	assert.False(t, st.IsRefreshing, "events do not touch flags")

	assert.True(t, s.ApplyProgress(rpc.ScanProgress{Phase: "done", Percent: 100, Status: rpc.ScanCompleted}))
	st = s.Snapshot()
	assert.Equal(t, rpc.ScanCompleted, st.LastProgress.Status)
	assert.False(t, st.Status.Running)
}
