// Package theme is the runtime store for the theme mode preference and the
// palette generated from the current track's cover.
package theme

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/observable"
	"github.com/roach88/benrt/internal/prefs"
	"github.com/roach88/benrt/internal/rpc"
	"github.com/roach88/benrt/internal/runtime"
)

// HostAppearance reports the host's light/dark preference.
type HostAppearance interface {
	PrefersDark() bool
}

// StaticAppearance is a HostAppearance with a fixed answer.
type StaticAppearance bool

// PrefersDark implements HostAppearance.
func (a StaticAppearance) PrefersDark() bool { return bool(a) }

// ModeStore persists the theme mode.
type ModeStore interface {
	ThemeMode(ctx context.Context) (string, bool, error)
	SetThemeMode(ctx context.Context, mode string) error
}

// Resolve maps a preference to the concrete light or dark mode.
func Resolve(mode string, host HostAppearance) string {
	switch mode {
	case rpc.ThemeLight, rpc.ThemeDark:
		return mode
	}
	if host != nil && host.PrefersDark() {
		return rpc.ThemeDark
	}
	return rpc.ThemeLight
}

// State is the theme domain's state.
type State struct {
	runtime.Meta

	Mode      string              `json:"mode"`
	Resolved  string              `json:"resolved"`
	CoverPath string              `json:"coverPath,omitempty"`
	Palette   *rpc.ThemePalette   `json:"palette,omitempty"`
	Options   *rpc.ExtractOptions `json:"options,omitempty"`
}

// Store is safe for concurrent use.
type Store struct {
	rt      *runtime.Store[State]
	backend rpc.ThemeService
	modes   ModeStore
	host    HostAppearance
	logger  *slog.Logger

	// coverGen increments on every ApplyCover; a palette is applied only if
	// its request is still the latest.
	coverGen atomic.Uint64

	optsMu sync.Mutex
}

// New creates a store in system mode.
func New(backend rpc.ThemeService, modes ModeStore, host HostAppearance, logger *slog.Logger) *Store {
	if host == nil {
		host = StaticAppearance(false)
	}
	if logger == nil {
		logger = slog.Default()
	}
	initial := State{Mode: rpc.ThemeSystem, Resolved: Resolve(rpc.ThemeSystem, host)}
	return &Store{
		rt:      runtime.NewStore("theme", initial, func(s *State) *runtime.Meta { return &s.Meta }, logger),
		backend: backend,
		modes:   modes,
		host:    host,
		logger:  logger,
	}
}

// State exposes the observable state.
func (s *Store) State() *observable.Store[State] { return s.rt.State() }

// Snapshot returns the current state.
func (s *Store) Snapshot() State { return s.rt.Get() }

// HydrateFromStartup sets the mode once: the locally persisted preference
// wins, then the snapshot's, then system.
func (s *Store) HydrateFromStartup(ctx context.Context, snapshotMode string) bool {
	mode := rpc.ThemeSystem
	if prefs.ValidThemeMode(snapshotMode) {
		mode = snapshotMode
	}
	if s.modes != nil {
		local, ok, err := s.modes.ThemeMode(ctx)
		switch {
		case err != nil:
			s.logger.Warn("theme preference unreadable, using snapshot", "error", err)
		case ok:
			mode = local
		}
	}
	return s.rt.Hydrate(func(st *State) {
		st.Mode = mode
		st.Resolved = Resolve(mode, s.host)
	})
}

// SetMode changes and persists the mode.
func (s *Store) SetMode(ctx context.Context, mode string) error {
	const op = "theme.set-mode"
	if !prefs.ValidThemeMode(mode) {
		return s.rt.Fail(op, fmt.Errorf("%w: %q", prefs.ErrInvalidThemeMode, mode))
	}
	return s.rt.Mutate(ctx, op, func(ctx context.Context) (runtime.Patch[State], error) {
		if s.modes != nil {
			if err := s.modes.SetThemeMode(ctx, mode); err != nil {
				return nil, err
			}
		}
		return func(st *State) {
			st.Mode = mode
			st.Resolved = Resolve(mode, s.host)
		}, nil
	}, nil)
}

// HostAppearanceChanged re-resolves the mode after the host preference
// changed. It only matters in system mode.
func (s *Store) HostAppearanceChanged() {
	s.rt.UpdateIf(func(st State) bool {
		return st.Resolved != Resolve(st.Mode, s.host)
	}, func(st *State) {
		st.Resolved = Resolve(st.Mode, s.host)
	})
}

// LoadDefaultOptions fetches the backend's default extraction options once.
func (s *Store) LoadDefaultOptions(ctx context.Context) error {
	s.optsMu.Lock()
	defer s.optsMu.Unlock()
	if s.rt.Get().Options != nil {
		return nil
	}
	return s.rt.Refresh(ctx, "theme.load-options", func(ctx context.Context) (runtime.Patch[State], error) {
		opts, err := s.backend.GetThemeDefaultOptions(ctx)
		if err != nil {
			return nil, err
		}
		return func(st *State) { st.Options = &opts }, nil
	})
}

// ApplyCover generates the palette for coverPath. An empty path clears the
// palette. If another request starts before this one's palette arrives, the
// older palette is discarded and apperr.ErrSuperseded is returned.
func (s *Store) ApplyCover(ctx context.Context, coverPath string) error {
	return s.PrepareCover(coverPath)(ctx)
}

// PrepareCover makes coverPath the latest cover request and returns the
// function that carries it out. Requests are ordered by PrepareCover calls,
// not by when their functions run, so callers may run them concurrently.
func (s *Store) PrepareCover(coverPath string) func(ctx context.Context) error {
	gen := s.coverGen.Add(1)
	latest := func() bool { return s.coverGen.Load() == gen }

	return func(ctx context.Context) error {
		if coverPath == "" {
			s.rt.UpdateIf(func(State) bool { return latest() }, func(st *State) {
				st.CoverPath = ""
				st.Palette = nil
			})
			return nil
		}
		if st := s.rt.Get(); st.CoverPath == coverPath && st.Palette != nil {
			return nil
		}

		if err := s.LoadDefaultOptions(ctx); err != nil {
			return err
		}
		if !latest() {
			return apperr.ErrSuperseded
		}
		opts := *s.rt.Get().Options

		err := s.rt.Refresh(ctx, "theme.generate-palette", func(ctx context.Context) (runtime.Patch[State], error) {
			palette, err := s.backend.GenerateThemePalette(ctx, coverPath, opts)
			if err != nil {
				return nil, err
			}
			if !latest() {
				return nil, apperr.ErrSuperseded
			}
			return func(st *State) {
				if latest() {
					st.CoverPath = coverPath
					st.Palette = &palette
				}
			}, nil
		})
		if apperr.IsCancelled(err) {
			s.logger.Debug("palette request superseded", "cover", coverPath)
		}
		return err
	}
}
