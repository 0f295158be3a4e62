// Package scanstate is the runtime store for watched folders and library
// scans.
package scanstate

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/benrt/internal/observable"
	"github.com/roach88/benrt/internal/rpc"
	"github.com/roach88/benrt/internal/runtime"
)

// ErrEmptyPath is surfaced when a folder is added with a blank path.
var ErrEmptyPath = errors.New("folder path is required")

// State is the scan domain's state.
type State struct {
	runtime.Meta

	Roots        []rpc.WatchedRoot `json:"roots"`
	Status       rpc.ScanStatus    `json:"status"`
	LastProgress *rpc.ScanProgress `json:"lastProgress,omitempty"`
}

// Backend is the part of rpc.Backend the store calls.
type Backend interface {
	rpc.SettingsService
	rpc.ScannerService
}

// Store is safe for concurrent use.
type Store struct {
	rt      *runtime.Store[State]
	backend Backend
}

// New creates an empty store.
func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		rt:      runtime.NewStore("scan", State{}, func(s *State) *runtime.Meta { return &s.Meta }, logger),
		backend: backend,
	}
}

// State exposes the observable state.
func (s *Store) State() *observable.Store[State] { return s.rt.State() }

// Snapshot returns the current state.
func (s *Store) Snapshot() State { return s.rt.Get() }

// HydrateFromStartup seeds the scan status from the startup snapshot. Only
// the first call has any effect. Once a progress event has been folded in,
// its running flag is kept over the snapshot's.
func (s *Store) HydrateFromStartup(status rpc.ScanStatus) bool {
	return s.rt.Hydrate(func(st *State) {
		running := st.Status.Running
		st.Status = status
		if st.LastProgress != nil {
			st.Status.Running = running
		}
	})
}

// Refresh re-reads the folder list and the scan status together.
func (s *Store) Refresh(ctx context.Context) error {
	return s.rt.Refresh(ctx, "scan.refresh", func(ctx context.Context) (runtime.Patch[State], error) {
		var (
			roots  []rpc.WatchedRoot
			status rpc.ScanStatus
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			roots, err = s.backend.ListWatchedRoots(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			status, err = s.backend.GetStatus(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return func(st *State) {
			st.Roots = roots
			st.Status = status
		}, nil
	})
}

// RefreshStatus re-reads only the scan status.
func (s *Store) RefreshStatus(ctx context.Context) error {
	return s.rt.Refresh(ctx, "scan.refresh-status", s.readStatus)
}

// RefreshRoots re-reads only the folder list.
func (s *Store) RefreshRoots(ctx context.Context) error {
	return s.rt.Refresh(ctx, "scan.refresh-roots", s.readRoots)
}

func (s *Store) readStatus(ctx context.Context) (runtime.Patch[State], error) {
	status, err := s.backend.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return func(st *State) { st.Status = status }, nil
}

func (s *Store) readRoots(ctx context.Context) (runtime.Patch[State], error) {
	roots, err := s.backend.ListWatchedRoots(ctx)
	if err != nil {
		return nil, err
	}
	return func(st *State) { st.Roots = roots }, nil
}

// AddRoot adds a watched folder. The path is trimmed and a blank path is
// rejected without calling the backend.
func (s *Store) AddRoot(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return s.rt.Fail("scan.add-root", ErrEmptyPath)
	}
	return s.rt.Mutate(ctx, "scan.add-root", func(ctx context.Context) (runtime.Patch[State], error) {
		_, err := s.backend.AddWatchedRoot(ctx, path)
		return nil, err
	}, s.readRoots)
}

// RemoveRoot removes a watched folder.
func (s *Store) RemoveRoot(ctx context.Context, id int64) error {
	return s.rt.Mutate(ctx, "scan.remove-root", func(ctx context.Context) (runtime.Patch[State], error) {
		return nil, s.backend.RemoveWatchedRoot(ctx, id)
	}, s.readRoots)
}

// SetRootEnabled enables or disables a watched folder.
func (s *Store) SetRootEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.rt.Mutate(ctx, "scan.set-root-enabled", func(ctx context.Context) (runtime.Patch[State], error) {
		return nil, s.backend.SetWatchedRootEnabled(ctx, id, enabled)
	}, s.readRoots)
}

// TriggerScan starts the backend's default scan.
func (s *Store) TriggerScan(ctx context.Context) error {
	return s.trigger(ctx, "scan.trigger", s.backend.TriggerScan)
}

// TriggerFullScan rescans every file.
func (s *Store) TriggerFullScan(ctx context.Context) error {
	return s.trigger(ctx, "scan.trigger-full", s.backend.TriggerFullScan)
}

// TriggerIncrementalScan scans only changed files.
func (s *Store) TriggerIncrementalScan(ctx context.Context) error {
	return s.trigger(ctx, "scan.trigger-incremental", s.backend.TriggerIncrementalScan)
}

func (s *Store) trigger(ctx context.Context, op string, call func(context.Context) error) error {
	return s.rt.Mutate(ctx, op, func(ctx context.Context) (runtime.Patch[State], error) {
		return nil, call(ctx)
	}, s.readStatus)
}

// ApplyProgress folds a scanner:progress event into the state and reports
// whether it ended the scan.
func (s *Store) ApplyProgress(p rpc.ScanProgress) bool {
	terminal := p.Terminal()
	s.rt.Update(func(st *State) {
		progress := p
		st.LastProgress = &progress
		st.Status.Running = !terminal
	})
	return terminal
}
