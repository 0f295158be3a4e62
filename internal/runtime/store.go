// Package runtime implements the lifecycle shared by every domain runtime
// store: one-time hydration, refresh and mutation bookkeeping, and error
// surfacing.
//
// A domain state struct embeds Meta and is held in a Store. Actions go
// through Refresh and Mutate, which clear ErrorMessage when they start, keep
// IsRefreshing and IsMutating set for as long as any call of that kind is
// running, and record a failure's message only if it was not a cancellation.
// A failed action never touches domain data.
package runtime

import (
	"context"
	"log/slog"

	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/observable"
)

// Meta is the bookkeeping every domain state carries.
type Meta struct {
	IsRefreshing           bool   `json:"isRefreshing"`
	IsMutating             bool   `json:"isMutating"`
	HasHydratedFromStartup bool   `json:"hasHydratedFromStartup"`
	ErrorMessage           string `json:"errorMessage,omitempty"`
}

// Patch applies a successful result to the state. Nil patches are allowed.
type Patch[S any] func(*S)

// Pull performs one remote call and returns the patch applying its result.
type Pull[S any] func(ctx context.Context) (Patch[S], error)

// Store wraps an observable state of type S whose Meta is reached through
// the accessor passed to NewStore.
type Store[S any] struct {
	name   string
	state  *observable.Store[S]
	meta   func(*S) *Meta
	logger *slog.Logger

	// guarded by the observable store's lock: only touched inside updaters
	refreshing int
	mutating   int
}

// NewStore creates a store named name (used in logs) holding initial.
func NewStore[S any](name string, initial S, meta func(*S) *Meta, logger *slog.Logger) *Store[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[S]{
		name:   name,
		state:  observable.New(initial),
		meta:   meta,
		logger: logger.With("store", name),
	}
}

// State exposes the observable state for subscriptions.
func (s *Store[S]) State() *observable.Store[S] { return s.state }

// Get returns the current state.
func (s *Store[S]) Get() S { return s.state.Get() }

// Update applies patch without touching Meta. Push events use it.
func (s *Store[S]) Update(patch Patch[S]) {
	s.state.Set(func(prev S) S {
		if patch != nil {
			patch(&prev)
		}
		return prev
	})
}

// UpdateIf applies patch only when keep reports true for the current state.
func (s *Store[S]) UpdateIf(keep func(S) bool, patch Patch[S]) bool {
	return s.state.Modify(func(prev S) (S, bool) {
		if !keep(prev) {
			return prev, false
		}
		patch(&prev)
		return prev, true
	})
}

// Hydrate applies patch and sets HasHydratedFromStartup, unless the store was
// already hydrated. It reports whether patch was applied.
func (s *Store[S]) Hydrate(patch Patch[S]) bool {
	applied := s.state.Modify(func(prev S) (S, bool) {
		if s.meta(&prev).HasHydratedFromStartup {
			return prev, false
		}
		if patch != nil {
			patch(&prev)
		}
		s.meta(&prev).HasHydratedFromStartup = true
		return prev, true
	})
	if applied {
		s.logger.Debug("store hydrated")
	} else {
		s.logger.Debug("store already hydrated, snapshot ignored")
	}
	return applied
}

// Fail records err as the store's error message without running an action.
// Cancellations are ignored.
func (s *Store[S]) Fail(op string, err error) error {
	err = apperr.From(op, err)
	s.Update(func(st *S) {
		if msg := apperr.Message(err); msg != "" {
			s.meta(st).ErrorMessage = msg
		}
	})
	return err
}

// ClearError resets ErrorMessage.
func (s *Store[S]) ClearError() {
	s.Update(func(st *S) { s.meta(st).ErrorMessage = "" })
}

// Refresh runs a full-state pull with IsRefreshing set.
func (s *Store[S]) Refresh(ctx context.Context, op string, pull Pull[S]) error {
	s.begin(&s.refreshing, func(m *Meta, busy bool) { m.IsRefreshing = busy })
	patch, err := pull(ctx)
	return s.end(op, &s.refreshing, func(m *Meta, busy bool) { m.IsRefreshing = busy }, patch, err)
}

// Mutate runs a write with IsMutating set. On success the write's own
// patch is applied, then reread (if non-nil) performs the targeted re-read
// of the affected state. A failed write leaves data untouched and skips the
// re-read.
func (s *Store[S]) Mutate(ctx context.Context, op string, write Pull[S], reread Pull[S]) error {
	setBusy := func(m *Meta, busy bool) { m.IsMutating = busy }
	s.begin(&s.mutating, setBusy)

	patch, err := write(ctx)
	if err != nil || reread == nil {
		return s.end(op, &s.mutating, setBusy, patch, err)
	}
	s.Update(patch)

	again, err := reread(ctx)
	return s.end(op, &s.mutating, setBusy, again, err)
}

func (s *Store[S]) begin(counter *int, setBusy func(*Meta, bool)) {
	s.state.Set(func(prev S) S {
		*counter++
		m := s.meta(&prev)
		setBusy(m, true)
		m.ErrorMessage = ""
		return prev
	})
}

func (s *Store[S]) end(op string, counter *int, setBusy func(*Meta, bool), patch Patch[S], err error) error {
	if err != nil {
		err = apperr.From(op, err)
		if apperr.IsCancelled(err) {
			s.logger.Debug("store action cancelled", "op", op, "error", err)
		} else {
			s.logger.Warn("store action failed", "op", op, "error", err)
		}
	}
	s.state.Set(func(prev S) S {
		*counter--
		m := s.meta(&prev)
		setBusy(m, *counter > 0)
		if err != nil {
			if msg := apperr.Message(err); msg != "" {
				m.ErrorMessage = msg
			}
			return prev
		}
		if patch != nil {
			patch(&prev)
		}
		return prev
	})
	return err
}
