// Package pushws subscribes to the backend's push channel over a websocket.
//
// Each text message is a JSON frame {"name": topic, "data": payload}. Frames
// are validated and decoded with an events.Decoder and published, in arrival
// order, to the handlers registered through Subscribe. The connection is
// re-established after a failure until the Run context ends.
package pushws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/benrt/internal/clock"
	"github.com/roach88/benrt/internal/events"
)

// Frame is one push message on the wire.
type Frame struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Settings control connection behavior.
type Settings struct {
	// ReconnectTimeout is the wait between connection attempts.
	ReconnectTimeout time.Duration `yaml:"reconnectTimeout"`

	// ReadTimeout closes a connection that stays silent this long. Zero
	// disables the deadline.
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
}

// DefaultSettings returns the stock connection settings.
func DefaultSettings() Settings {
	return Settings{
		ReconnectTimeout: time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Client is an events.Subscriber backed by a websocket.
type Client struct {
	url      string
	settings Settings
	decoder  *events.Decoder
	hub      *events.Hub
	clock    clock.Clock
	logger   *slog.Logger

	connects atomic.Int64
	dropped  atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithSettings overrides DefaultSettings.
func WithSettings(s Settings) Option {
	return func(c *Client) { c.settings = s }
}

// WithClock sets the clock stamping ReceivedAt.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clock.OrReal(clk) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for url. Nothing connects until Run.
func New(url string, decoder *events.Decoder, opts ...Option) *Client {
	c := &Client{
		url:      url,
		settings: DefaultSettings(),
		decoder:  decoder,
		hub:      events.NewHub(),
		clock:    clock.Real{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ events.Subscriber = (*Client)(nil)

// Subscribe implements events.Subscriber.
func (c *Client) Subscribe(topic events.Topic, h events.Handler) func() {
	return c.hub.Subscribe(topic, h)
}

// Connects returns the number of successful handshakes.
func (c *Client) Connects() int64 { return c.connects.Load() }

// Dropped returns the number of frames discarded as undecodable.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Run connects and reads until ctx is done, reconnecting after failures.
// It returns nil once ctx ends.
func (c *Client) Run(ctx context.Context) error {
	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: c.settings.HandshakeTimeout,
	}
	for {
		ws, _, err := dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.connects.Add(1)
			c.logger.Debug("push channel connected", "url", c.url)
			err = c.read(ctx, ws)
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Info("push channel disconnected",
			"url", c.url,
			"error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.settings.ReconnectTimeout):
		}
	}
}

func (c *Client) read(ctx context.Context, ws *websocket.Conn) error {
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		if c.settings.ReadTimeout > 0 {
			ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		}
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.dispatch(message)
	}
}

func (c *Client) dispatch(message []byte) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.drop("malformed frame", err)
		return
	}
	e, err := c.decoder.Decode(frame.Name, frame.Data, c.clock.Now())
	if err != nil {
		c.drop("undecodable event", err)
		return
	}
	c.hub.Publish(e)
}

func (c *Client) drop(reason string, err error) {
	c.dropped.Add(1)
	level := slog.LevelWarn
	if errors.Is(err, events.ErrUnknownTopic) {
		level = slog.LevelDebug
	}
	c.logger.Log(context.Background(), level, "push frame dropped",
		"reason", reason,
		"error", err)
}
