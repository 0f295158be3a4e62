// Package prefs persists local preferences in SQLite.
//
// The runtime keeps a single preference today, the theme mode, read once at
// hydration and written on every explicit change.
//
// # Database Configuration
//
//   - WAL mode for concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - one open connection, so ":memory:" databases work
package prefs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/benrt/internal/clock"
	"github.com/roach88/benrt/internal/rpc"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - initial schema
// 1 - index on preferences.updated_at
const currentSchemaVersion = 1

// ThemeModeKey is the key holding the theme mode preference.
const ThemeModeKey = "theme.mode"

// ErrInvalidThemeMode is returned for modes other than light, dark and system.
var ErrInvalidThemeMode = errors.New("invalid theme mode")

// ValidThemeMode reports whether mode is light, dark or system.
func ValidThemeMode(mode string) bool {
	switch mode {
	case rpc.ThemeLight, rpc.ThemeDark, rpc.ThemeSystem:
		return true
	}
	return false
}

// Store is a SQLite-backed preference store.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock stamping updated_at.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = clock.OrReal(c) }
}

// Open creates or opens the database at path and applies the schema.
// It is safe to call repeatedly on the same path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect preferences: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, clock: clock.Real{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_preferences_updated_at ON preferences(updated_at)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, bumping its revision.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, revision, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			revision = preferences.revision + 1,
			updated_at = excluded.updated_at
	`, key, value, s.clock.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set preference %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	return nil
}

// Revision returns how many times key was written, 0 if never.
func (s *Store) Revision(ctx context.Context, key string) (int, error) {
	var rev int
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM preferences WHERE key = ?`, key).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get revision %q: %w", key, err)
	}
	return rev, nil
}

// ThemeMode returns the stored theme mode. A stored value that is not a
// valid mode reads as absent.
func (s *Store) ThemeMode(ctx context.Context) (string, bool, error) {
	mode, ok, err := s.Get(ctx, ThemeModeKey)
	if err != nil || !ok {
		return "", false, err
	}
	if !ValidThemeMode(mode) {
		return "", false, nil
	}
	return mode, true, nil
}

// SetThemeMode stores mode.
func (s *Store) SetThemeMode(ctx context.Context, mode string) error {
	if !ValidThemeMode(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidThemeMode, mode)
	}
	return s.Set(ctx, ThemeModeKey, mode)
}
