// Package config loads the runtime configuration from YAML.
//
// Every field has a default, so an empty file (or no file) is a valid
// configuration. Durations are written as Go duration strings ("420ms").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/benrt/internal/gesture"
	"github.com/roach88/benrt/internal/pushws"
	"github.com/roach88/benrt/internal/querycache"
	"github.com/roach88/benrt/internal/scheduler"
)

// Config is the full runtime configuration.
type Config struct {
	RPC       RPC            `yaml:"rpc"`
	Push      Push           `yaml:"push"`
	Prefs     Prefs          `yaml:"prefs"`
	Cache     Cache          `yaml:"cache"`
	Gesture   gesture.Config `yaml:"gesture"`
	Scheduler Scheduler      `yaml:"scheduler"`
	Startup   Startup        `yaml:"startup"`
	Log       Log            `yaml:"log"`
}

// RPC configures the pull transport.
type RPC struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// Push configures the websocket push channel.
type Push struct {
	URL             string `yaml:"url"`
	pushws.Settings `yaml:",inline"`
}

// Prefs configures the preference database.
type Prefs struct {
	Path string `yaml:"path"`
}

// Cache holds the query cache defaults.
type Cache struct {
	StaleTime time.Duration `yaml:"staleTime"`
	GCTime    time.Duration `yaml:"gcTime"`
}

// Options converts c to query cache options.
func (c Cache) Options() querycache.Options {
	return querycache.Options{StaleTime: c.StaleTime, GCTime: c.GCTime}
}

// Scheduler configures the frame and idle schedulers.
type Scheduler struct {
	FrameInterval time.Duration `yaml:"frameInterval"`
	IdleFallback  time.Duration `yaml:"idleFallback"`
}

// Startup configures the bootstrap snapshot request.
type Startup struct {
	AlbumsLimit  int `yaml:"albumsLimit"`
	AlbumsOffset int `yaml:"albumsOffset"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Handler returns the log handler l describes, writing to w.
func (l Log) Handler(w io.Writer) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		RPC:   RPC{BaseURL: "http://127.0.0.1:7331", Timeout: 15 * time.Second},
		Push:  Push{URL: "ws://127.0.0.1:7331/events", Settings: pushws.DefaultSettings()},
		Prefs: Prefs{Path: "benrt-prefs.db"},
		Cache: Cache{
			StaleTime: querycache.DefaultStaleTime,
			GCTime:    querycache.DefaultGCTime,
		},
		Gesture: gesture.DefaultConfig(),
		Scheduler: Scheduler{
			FrameInterval: scheduler.DefaultFrameInterval,
			IdleFallback:  scheduler.DefaultIdleFallback,
		},
		Startup: Startup{AlbumsLimit: 50},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Unknown fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	g := c.Gesture
	positive("gesture.cooldown", g.Cooldown > 0)
	positive("gesture.touchMaxDuration", g.TouchMaxDuration > 0)
	positive("gesture.touchMinDistance", g.TouchMinDistance > 0)
	positive("gesture.wheelThreshold", g.WheelThreshold > 0)
	positive("gesture.wheelIdleReset", g.WheelIdleReset > 0)
	if g.WheelNoiseFloor < 0 {
		errs = append(errs, errors.New("gesture.wheelNoiseFloor must not be negative"))
	}
	if g.TouchDominance < 1 {
		errs = append(errs, errors.New("gesture.touchDominance must be at least 1"))
	}
	if g.WheelDominance < 1 {
		errs = append(errs, errors.New("gesture.wheelDominance must be at least 1"))
	}

	positive("cache.staleTime", c.Cache.StaleTime > 0)
	positive("cache.gcTime", c.Cache.GCTime > 0)
	positive("scheduler.frameInterval", c.Scheduler.FrameInterval > 0)
	positive("scheduler.idleFallback", c.Scheduler.IdleFallback > 0)
	positive("push.reconnectTimeout", c.Push.ReconnectTimeout > 0)
	positive("startup.albumsLimit", c.Startup.AlbumsLimit > 0)
	if c.Startup.AlbumsOffset < 0 {
		errs = append(errs, errors.New("startup.albumsOffset must not be negative"))
	}
	if c.RPC.BaseURL == "" {
		errs = append(errs, errors.New("rpc.baseURL is required"))
	}
	if c.Prefs.Path == "" {
		errs = append(errs, errors.New("prefs.path is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Encode writes c as YAML.
func (c Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
