package history

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(s State) []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Path
	}
	return out
}

func TestNew_SingleEntry(t *testing.T) {
	s := New("")
	st := s.State()
	require.Len(t, st.Entries, 1)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "/", st.Entries[0].Path)
	assert.False(t, s.CanGoBack())
	assert.False(t, s.CanGoForward())
}

func TestPush_AppendsAndAdvances(t *testing.T) {
	s := New("/")
	first := s.CurrentEntryKey()
	s.Push("/albums?sort=year")

	st := s.State()
	assert.Equal(t, []string{"/", "/albums"}, paths(st))
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, "?sort=year", s.Current().Search)
	assert.Greater(t, s.CurrentEntryKey(), first)
	assert.True(t, s.CanGoBack())
}

func TestPush_BranchTruncation(t *testing.T) {
	s := New("/a")
	s.Push("/b")
	s.Push("/c")
	require.Equal(t, 2, s.State().Index)

	require.True(t, s.Back())
	s.Push("/d")

	st := s.State()
	assert.Equal(t, []string{"/a", "/b", "/d"}, paths(st))
	assert.Equal(t, 2, st.Index)
	assert.False(t, s.CanGoForward())
}

func TestPush_ReplaceOption(t *testing.T) {
	s := New("/a")
	s.Push("/b")
	s.Push("/c", PushOptions{Replace: true})

	st := s.State()
	assert.Equal(t, []string{"/a", "/c"}, paths(st))
	assert.Equal(t, 1, st.Index)
}

func TestReplace_KeepsLengthAndIndex(t *testing.T) {
	s := New("/a")
	s.Push("/b")
	s.Push("/c")
	s.Back()
	before := s.State()
	oldKey := s.CurrentEntryKey()

	s.Replace("/x?y=1")

	after := s.State()
	assert.Len(t, after.Entries, len(before.Entries))
	assert.Equal(t, before.Index, after.Index)
	assert.Equal(t, []string{"/a", "/x", "/c"}, paths(after))
	assert.NotEqual(t, oldKey, s.CurrentEntryKey())
	assert.Equal(t, "/b", before.Entries[1].Path, "earlier snapshots are not mutated")
}

func TestGo_ClampsAndNoOpsAtBoundary(t *testing.T) {
	s := New("/a")
	s.Push("/b")
	s.Push("/c")

	notifications := 0
	s.Observable().SubscribeAll(func(State) { notifications++ })

	assert.False(t, s.Forward(), "already at the end")
	assert.Equal(t, 0, notifications)

	assert.True(t, s.Go(-10))
	assert.Equal(t, 0, s.State().Index)
	assert.Equal(t, 1, notifications)

	assert.False(t, s.Back())
	assert.False(t, s.Go(0))
	assert.Equal(t, 1, notifications)

	assert.True(t, s.Go(5))
	assert.Equal(t, 2, s.State().Index)
}

func TestSetCurrentScroll(t *testing.T) {
	s := New("/a")
	notifications := 0
	s.Observable().SubscribeAll(func(State) { notifications++ })

	s.SetCurrentScroll(120)
	assert.Equal(t, 120.0, s.Current().ScrollTop)
	assert.Equal(t, 1, notifications)

	s.SetCurrentScroll(120)
	assert.Equal(t, 1, notifications, "unchanged value does not notify")

	s.SetCurrentScroll(-4)
	assert.Equal(t, 0.0, s.Current().ScrollTop)
	s.SetCurrentScroll(math.NaN())
	s.SetCurrentScroll(math.Inf(1))
	assert.Equal(t, 0.0, s.Current().ScrollTop)
	assert.Equal(t, 2, notifications)
}

func TestSetCurrentScroll_RestoredAfterNavigation(t *testing.T) {
	s := New("/albums")
	s.SetCurrentScroll(120)
	s.Push("/albums/1")
	s.SetCurrentScroll(30)

	require.True(t, s.Back())
	assert.Equal(t, 120.0, s.Current().ScrollTop)
	require.True(t, s.Forward())
	assert.Equal(t, 30.0, s.Current().ScrollTop)
}

func TestIndexBounds_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := New("/")

	for i := 0; i < 2000; i++ {
		switch rng.Intn(6) {
		case 0:
			s.Push("/p")
		case 1:
			s.Back()
		case 2:
			s.Forward()
		case 3:
			s.Go(rng.Intn(9) - 4)
		case 4:
			s.Replace("/r")
		case 5:
			s.SetCurrentScroll(float64(rng.Intn(500)))
		}
		st := s.State()
		require.NotEmpty(t, st.Entries)
		require.GreaterOrEqual(t, st.Index, 0)
		require.Less(t, st.Index, len(st.Entries))
	}
}

func TestEntryKeys_Monotonic(t *testing.T) {
	s := New("/")
	last := s.CurrentEntryKey()
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			s.Push("/n")
		} else {
			s.Replace("/m")
		}
		key := s.CurrentEntryKey()
		assert.Greater(t, key, last)
		last = key
	}
}

func TestParseHref(t *testing.T) {
	tests := []struct {
		href   string
		path   string
		search string
	}{
		{"", "/", ""},
		{"/", "/", ""},
		{"albums", "/albums", ""},
		{"/albums?sort=year", "/albums", "?sort=year"},
		{"?q=1", "/", "?q=1"},
		{"/a?", "/a", ""},
		{"/a#frag", "/a", ""},
		{"/a?x=1#frag", "/a", "?x=1"},
		{"wails://localhost/artists/x?tab=top", "/artists/x", "?tab=top"},
		{"http://localhost", "/", ""},
		{"  /trim  ", "/trim", ""},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			path, search := ParseHref(tt.href)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.search, search)
		})
	}
}

func TestEntry_Href(t *testing.T) {
	assert.Equal(t, "/a?b=1", Entry{Path: "/a", Search: "?b=1"}.Href())
}
