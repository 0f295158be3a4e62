// Package app assembles the runtime for one application session.
//
// New builds every store and its collaborators. Start binds the event
// bridge, fetches the startup snapshot, and hydrates the stores once the host
// is idle. Close tears everything down in reverse order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/bridge"
	"github.com/roach88/benrt/internal/clock"
	"github.com/roach88/benrt/internal/config"
	"github.com/roach88/benrt/internal/events"
	"github.com/roach88/benrt/internal/gesture"
	"github.com/roach88/benrt/internal/history"
	"github.com/roach88/benrt/internal/library"
	"github.com/roach88/benrt/internal/observable"
	"github.com/roach88/benrt/internal/playback"
	"github.com/roach88/benrt/internal/querycache"
	"github.com/roach88/benrt/internal/rpc"
	"github.com/roach88/benrt/internal/scanstate"
	"github.com/roach88/benrt/internal/scheduler"
	"github.com/roach88/benrt/internal/scroll"
	"github.com/roach88/benrt/internal/theme"
)

var (
	ErrAlreadyStarted = errors.New("app already started")
	ErrClosed         = errors.New("app closed")
)

// Deps are the external collaborators. Backend and Events are required.
type Deps struct {
	Backend rpc.Backend
	Events  events.Subscriber

	// Prefs persists the theme mode. Nil keeps it in memory only.
	Prefs theme.ModeStore
	// Host reports the system light/dark preference.
	Host theme.HostAppearance
	// Frames replaces the clock-driven frame scheduler.
	Frames scheduler.FrameScheduler
	// Idle is the host's native idle callback, if it has one.
	Idle scheduler.IdleProvider
	// Viewport enables scroll restoration.
	Viewport scroll.Viewport
	// Channel feeds Events from the backend. Start runs it once the bridge
	// is bound; it stops when the App closes.
	Channel Channel
}

// Channel is a push transport that delivers until ctx ends.
type Channel interface {
	Run(ctx context.Context) error
}

// App owns every runtime store for one session.
type App struct {
	SessionID string

	Cache    *querycache.Cache
	Library  *library.Reader
	Scan     *scanstate.Store
	Playback *playback.Store
	Theme    *theme.Store
	History  *history.Store
	Gestures *gesture.Engine
	Scroll   *scroll.Restorer
	Bridge   *bridge.Bridge
	Frames   scheduler.FrameScheduler
	Idle     *scheduler.Idle

	cfg     config.Config
	backend rpc.Backend
	channel Channel
	logger  *slog.Logger

	// ctx outlives Start and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	started   bool
	closed    bool
	covers    sync.WaitGroup
	tasks     sync.WaitGroup
	stopCover func()
}

// Option configures an App.
type Option func(*options)

type options struct {
	clock    clock.Clock
	logger   *slog.Logger
	registry prometheus.Registerer
	href     string
}

func newOptions(opts []Option) options {
	o := options{clock: clock.Real{}, logger: slog.Default(), href: "/"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithClock sets the time source for every component. Default: clock.Real.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the cache and bridge metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithInitialHref sets the first history entry. Default: "/".
func WithInitialHref(href string) Option {
	return func(o *options) { o.href = href }
}

// New wires an App from cfg and deps. Nothing runs until Start.
func New(cfg config.Config, deps Deps, opts ...Option) (*App, error) {
	if deps.Backend == nil || deps.Events == nil {
		return nil, errors.New("app: backend and events are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	o := newOptions(opts)

	session := newSessionID()
	logger := o.logger.With("session", session)

	a := &App{
		SessionID: session,
		cfg:       cfg,
		backend:   deps.Backend,
		channel:   deps.Channel,
		logger:    logger,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.Cache = querycache.New(
		querycache.WithClock(o.clock),
		querycache.WithLogger(logger),
		querycache.WithDefaults(cfg.Cache.Options()),
		querycache.WithRegisterer(o.registry),
	)
	a.Library = library.New(a.Cache, deps.Backend)
	a.Scan = scanstate.New(deps.Backend, logger)
	a.Playback = playback.New(deps.Backend, logger)
	a.Theme = theme.New(deps.Backend, deps.Prefs, deps.Host, logger)

	a.History = history.New(o.href)
	a.Gestures = gesture.New(a.History,
		gesture.WithConfig(cfg.Gesture),
		gesture.WithClock(o.clock),
		gesture.WithLogger(logger))

	a.Frames = deps.Frames
	if a.Frames == nil {
		a.Frames = scheduler.NewFrames(o.clock, cfg.Scheduler.FrameInterval)
	}
	a.Idle = scheduler.NewIdle(a.Frames, deps.Idle, o.clock, cfg.Scheduler.IdleFallback)
	if deps.Viewport != nil {
		a.Scroll = scroll.NewRestorer(a.History, deps.Viewport, a.Frames)
	}

	a.Bridge = bridge.New(deps.Events, a.Scan, a.Playback, a.Cache,
		bridge.WithLogger(logger),
		bridge.WithRegisterer(o.registry))
	return a, nil
}

func newSessionID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Start binds the bridge, fetches the startup snapshot and the theme
// defaults concurrently, and blocks until the idle-scheduled hydration has
// run. A failed snapshot is not fatal: the stores fall back to their own
// refreshes and surface any error there.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.started:
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	// Bind first so no push event sent during startup is missed.
	if err := a.Bridge.Bind(a.ctx); err != nil {
		return fmt.Errorf("bind bridge: %w", err)
	}
	a.runChannel()

	var snap rpc.StartupSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = a.backend.GetInitialState(gctx, a.cfg.Startup.AlbumsLimit, a.cfg.Startup.AlbumsOffset)
		return err
	})
	g.Go(func() error {
		if err := a.Theme.LoadDefaultOptions(gctx); err != nil && !apperr.IsCancelled(err) {
			a.logger.Warn("theme default options unavailable", "error", err)
		}
		return nil
	})
	snapErr := g.Wait()
	if ctx.Err() != nil {
		return apperr.Cancelled("app.start", ctx.Err())
	}
	if snapErr != nil {
		a.logger.Warn("startup snapshot failed, refreshing stores individually", "error", snapErr)
	}

	hydrated := make(chan struct{})
	cancelIdle := a.Idle.Run(func() {
		defer close(hydrated)
		a.hydrate(ctx, snap, snapErr)
	})
	select {
	case <-hydrated:
	case <-ctx.Done():
		cancelIdle()
		return apperr.Cancelled("app.start", ctx.Err())
	}

	a.followCovers()
	a.logger.Info("runtime started")
	return nil
}

func (a *App) hydrate(ctx context.Context, snap rpc.StartupSnapshot, snapErr error) {
	if snapErr != nil {
		a.Theme.HydrateFromStartup(ctx, "")
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return a.Scan.Refresh(gctx) })
		g.Go(func() error { return a.Playback.Refresh(gctx) })
		if err := g.Wait(); err != nil {
			a.logger.Debug("fallback refresh failed", "error", err)
		}
		return
	}

	a.Scan.HydrateFromStartup(snap.ScanStatus)
	a.Playback.HydrateFromStartup(snap.QueueState, snap.PlayerState)
	a.Theme.HydrateFromStartup(ctx, snap.ThemeModePreference)
	params := rpc.ListAlbumsParams{Limit: a.cfg.Startup.AlbumsLimit, Offset: a.cfg.Startup.AlbumsOffset}
	if err := a.Library.SeedAlbums(params, snap.AlbumsPage); err != nil {
		a.logger.Warn("seed albums page", "error", err)
	}
	a.logger.Debug("stores hydrated from startup snapshot",
		"queue", snap.QueueState.Total,
		"albums", len(snap.AlbumsPage.Items))
}

func (a *App) runChannel() {
	if a.channel == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.tasks.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.tasks.Done()
		if err := a.channel.Run(a.ctx); err != nil && !apperr.IsCancelled(err) {
			a.logger.Warn("push channel stopped", "error", err)
		}
	}()
}

// followCovers keeps the theme palette on the current track's cover.
func (a *App) followCovers() {
	stop := observable.Subscribe(a.Playback.State(), currentCover, func(next, _ string) {
		a.applyCover(next)
	})
	a.mu.Lock()
	a.stopCover = stop
	a.mu.Unlock()
	a.applyCover(currentCover(a.Playback.Snapshot()))
}

func (a *App) applyCover(cover string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.covers.Add(1)
	a.mu.Unlock()

	run := a.Theme.PrepareCover(cover)
	go func() {
		defer a.covers.Done()
		if err := run(a.ctx); err != nil && !apperr.IsCancelled(err) {
			a.logger.Debug("palette not applied", "cover", cover, "error", err)
		}
	}()
}

func currentCover(st playback.State) string {
	track := st.Player.CurrentTrack
	if track == nil {
		track = st.Queue.CurrentTrack
	}
	if track == nil || track.CoverPath == nil {
		return ""
	}
	return *track.CoverPath
}

// Settle waits until every push event received so far has been applied and
// the palette requests it caused have finished.
func (a *App) Settle(ctx context.Context) error {
	if err := a.Bridge.Drain(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		a.covers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the bridge and every background task. It is idempotent.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	stop := a.stopCover
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	a.Bridge.Close()
	a.cancel()
	a.tasks.Wait()
	a.covers.Wait()
	if a.Scroll != nil {
		a.Scroll.Close()
	}
	a.Cache.Close()
	a.logger.Info("runtime closed")
}
