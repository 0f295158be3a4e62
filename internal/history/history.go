// Package history implements the virtual navigation stack: an ordered list
// of entries plus a current index, owned by the application rather than by
// the host's native history.
//
// INVARIANTS:
//   - Entries is never empty once a Store exists
//   - 0 <= Index < len(Entries)
//   - Entry keys are strictly increasing in allocation order
//   - A State value handed out is never mutated afterwards (copy-on-write)
package history

import (
	"math"
	"strings"

	"github.com/roach88/benrt/internal/clock"
	"github.com/roach88/benrt/internal/observable"
)

// Entry is one addressable navigation state.
type Entry struct {
	Key       int64   `json:"key"`
	Path      string  `json:"path"`
	Search    string  `json:"search"`
	ScrollTop float64 `json:"scrollTop"`
}

// Href reassembles the entry's path and query.
func (e Entry) Href() string {
	return e.Path + e.Search
}

// State is the full navigation state.
type State struct {
	Entries []Entry `json:"entries"`
	Index   int     `json:"index"`
}

// Current returns the entry at Index.
func (s State) Current() Entry {
	if len(s.Entries) == 0 {
		return Entry{}
	}
	return s.Entries[s.Index]
}

// PushOptions modifies a Push.
type PushOptions struct {
	// Replace turns the push into a Replace.
	Replace bool
}

// Store is the virtual history store.
//
// Thread-safety: all methods are safe for concurrent use; every transition
// is a single atomic update of the underlying observable store.
type Store struct {
	state *observable.Store[State]
	keys  *clock.Seq
}

// New creates a store holding a single entry for initialHref.
func New(initialHref string) *Store {
	keys := clock.NewSeq()
	path, search := ParseHref(initialHref)
	return &Store{
		state: observable.New(State{
			Entries: []Entry{{Key: keys.Next(), Path: path, Search: search}},
			Index:   0,
		}),
		keys: keys,
	}
}

// Observable exposes the underlying store for selector subscriptions.
func (s *Store) Observable() *observable.Store[State] {
	return s.state
}

// State returns the current navigation state.
func (s *Store) State() State {
	return s.state.Get()
}

// Current returns the current entry.
func (s *Store) Current() Entry {
	return s.state.Get().Current()
}

// CurrentEntryKey returns the key of the current entry.
func (s *Store) CurrentEntryKey() int64 {
	return s.Current().Key
}

// CanGoBack reports whether Back would move.
func (s *Store) CanGoBack() bool {
	return s.state.Get().Index > 0
}

// CanGoForward reports whether Forward would move.
func (s *Store) CanGoForward() bool {
	st := s.state.Get()
	return st.Index < len(st.Entries)-1
}

// Push discards every entry after the current one and appends a fresh entry
// for href, which becomes current.
func (s *Store) Push(href string, opts ...PushOptions) {
	for _, o := range opts {
		if o.Replace {
			s.Replace(href)
			return
		}
	}

	path, search := ParseHref(href)
	s.state.Set(func(prev State) State {
		kept := prev.Entries[:prev.Index+1]
		entries := make([]Entry, len(kept), len(kept)+1)
		copy(entries, kept)
		entries = append(entries, Entry{Key: s.keys.Next(), Path: path, Search: search})
		return State{Entries: entries, Index: len(entries) - 1}
	})
}

// Replace overwrites the current entry with a fresh entry for href. Length
// and index are unchanged.
func (s *Store) Replace(href string) {
	path, search := ParseHref(href)
	s.state.Set(func(prev State) State {
		entries := make([]Entry, len(prev.Entries))
		copy(entries, prev.Entries)
		entries[prev.Index] = Entry{Key: s.keys.Next(), Path: path, Search: search}
		return State{Entries: entries, Index: prev.Index}
	})
}

// Back moves one entry back. It reports whether the index changed.
func (s *Store) Back() bool {
	return s.Go(-1)
}

// Forward moves one entry forward. It reports whether the index changed.
func (s *Store) Forward() bool {
	return s.Go(1)
}

// Go moves by delta entries, clamped into range. Already being at the
// boundary in the direction of travel is a no-op with no notification.
func (s *Store) Go(delta int) bool {
	if delta == 0 {
		return false
	}
	return s.state.Modify(func(prev State) (State, bool) {
		target := min(max(prev.Index+delta, 0), len(prev.Entries)-1)
		if target == prev.Index {
			return prev, false
		}
		return State{Entries: prev.Entries, Index: target}, true
	})
}

// SetCurrentScroll records the scroll offset of the current entry. Negative
// and non-finite values normalize to 0; an unchanged value is a no-op.
func (s *Store) SetCurrentScroll(scrollTop float64) {
	scrollTop = normalizeScroll(scrollTop)
	s.state.Modify(func(prev State) (State, bool) {
		if prev.Entries[prev.Index].ScrollTop == scrollTop {
			return prev, false
		}
		entries := make([]Entry, len(prev.Entries))
		copy(entries, prev.Entries)
		entries[prev.Index].ScrollTop = scrollTop
		return State{Entries: entries, Index: prev.Index}, true
	})
}

func normalizeScroll(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// ParseHref splits href into a path and a search string.
//
// The path defaults to "/" and always starts with "/". The search keeps its
// leading "?" and is empty when there is no query. Fragments are dropped.
// Absolute URLs ("scheme://host/...") contribute only their path and query.
func ParseHref(href string) (path, search string) {
	href = strings.TrimSpace(href)
	if i := strings.Index(href, "#"); i >= 0 {
		href = href[:i]
	}
	if i := strings.Index(href, "://"); i >= 0 {
		rest := href[i+3:]
		if j := strings.IndexAny(rest, "/?"); j >= 0 {
			href = rest[j:]
		} else {
			href = ""
		}
	}

	path = href
	if i := strings.Index(href, "?"); i >= 0 {
		path = href[:i]
		search = href[i:]
		if search == "?" {
			search = ""
		}
	}

	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, search
}
