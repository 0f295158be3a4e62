package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/benrt/internal/rpc"
	"github.com/roach88/benrt/internal/testutil"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := Open(path, WithClock(testutil.NewFakeClock(testutil.Epoch)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpen_CreatesDatabase(t *testing.T) {
	_, path := openTemp(t)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	for range 3 {
		s, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/prefs.db")
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestGetSetDelete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "one"))
	require.NoError(t, s.Set(ctx, "k", "two"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	rev, err := s.Revision(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, rev)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	rev, err = s.Revision(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, rev)
}

func TestThemeMode(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	_, ok, err := s.ThemeMode(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetThemeMode(ctx, rpc.ThemeDark))
	assert.ErrorIs(t, s.SetThemeMode(ctx, "sepia"), ErrInvalidThemeMode)

	require.NoError(t, s.Close())
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	mode, ok, err := reopened.ThemeMode(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rpc.ThemeDark, mode)
}

func TestThemeMode_IgnoresCorruptValue(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, ThemeModeKey, "neon"))

	_, ok, err := s.ThemeMode(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
