package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/roach88/benrt/internal/apperr"
	"github.com/roach88/benrt/internal/config"
	"github.com/roach88/benrt/internal/events"
	"github.com/roach88/benrt/internal/prefs"
	"github.com/roach88/benrt/internal/pushws"
	"github.com/roach88/benrt/internal/rpc"
)

// Session is an App wired to the real backend: calls over HTTP, push
// events over a websocket, and preferences in SQLite.
type Session struct {
	*App

	Push  *pushws.Client
	Prefs *prefs.Store
}

// Connect builds the transports described by cfg and an App over them.
// Nothing is dialed until Run. The caller must Close the session.
func Connect(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	o := newOptions(opts)

	store, err := prefs.Open(cfg.Prefs.Path, prefs.WithClock(o.clock))
	if err != nil {
		return nil, err
	}

	backend := rpc.NewClient(cfg.RPC.BaseURL,
		rpc.WithHTTPClient(&http.Client{Timeout: cfg.RPC.Timeout}),
		rpc.WithClientLogger(o.logger.With("component", "rpc")))
	push := pushws.New(cfg.Push.URL, events.MustDecoder(),
		pushws.WithSettings(cfg.Push.Settings),
		pushws.WithClock(o.clock),
		pushws.WithLogger(o.logger.With("component", "push")))

	a, err := New(cfg, Deps{
		Backend: backend,
		Events:  push,
		Prefs:   store,
		Channel: push,
	}, opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Session{App: a, Push: push, Prefs: store}, nil
}

// Run starts the session and blocks until ctx ends. A cancelled start is
// not an error.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		if apperr.IsCancelled(err) {
			return nil
		}
		return err
	}
	<-ctx.Done()
	return nil
}

// Close stops the runtime and closes the preference database.
func (s *Session) Close() error {
	s.App.Close()
	return s.Prefs.Close()
}
