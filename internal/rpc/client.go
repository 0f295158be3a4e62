package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/benrt/internal/apperr"
)

// RequestIDHeader carries the per-call request id.
const RequestIDHeader = "X-Request-ID"

// CallPath is the endpoint every call is posted to, relative to the base URL.
const CallPath = "/rpc/call"

// Request is the body of one call.
type Request struct {
	Service string            `json:"service"`
	Method  string            `json:"method"`
	Args    []json.RawMessage `json:"args"`
}

// Response is the body of one reply. Error is empty on success.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client implements Backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client posting to baseURL+CallPath.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Backend = (*Client)(nil)

// Call invokes service.method with args and decodes the result into out.
// A nil out discards the result.
//
// Transport failures and backend errors are returned as *apperr.Error.
// Failures caused by ctx cancellation classify as cancelled.
func (c *Client) Call(ctx context.Context, service, method string, out any, args ...any) error {
	op := service + "." + method
	req := Request{Service: service, Method: method, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return apperr.Unknown(op, fmt.Errorf("encode arg %d: %w", i, err))
		}
		req.Args = append(req.Args, raw)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return apperr.Unknown(op, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CallPath, bytes.NewReader(body))
	if err != nil {
		return apperr.Unknown(op, err)
	}
	id := newRequestID()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(RequestIDHeader, id)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.Cancelled(op, ctx.Err())
		}
		return apperr.From(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.Cancelled(op, ctx.Err())
		}
		return apperr.Unknown(op, fmt.Errorf("read response: %w", err))
	}

	var reply Response
	if err := json.Unmarshal(raw, &reply); err != nil {
		if resp.StatusCode != http.StatusOK {
			return apperr.Unknown(op, fmt.Errorf("http status %d", resp.StatusCode))
		}
		return apperr.Unknown(op, fmt.Errorf("decode response: %w", err))
	}
	if reply.Error != "" {
		c.logger.Debug("rpc call failed",
			"op", op,
			"request_id", id,
			"error", reply.Error)
		return apperr.From(op, errors.New(reply.Error))
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.Unknown(op, fmt.Errorf("http status %d", resp.StatusCode))
	}
	if out == nil || len(reply.Result) == 0 || string(reply.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return apperr.Unknown(op, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func invoke[T any](ctx context.Context, c *Client, service, method string, args ...any) (T, error) {
	var out T
	err := c.Call(ctx, service, method, &out, args...)
	return out, err
}

const (
	svcSettings  = "SettingsService"
	svcScanner   = "ScannerService"
	svcLibrary   = "LibraryService"
	svcQueue     = "QueueService"
	svcPlayer    = "PlaybackService"
	svcTheme     = "ThemeService"
	svcStats     = "StatsService"
	svcBootstrap = "BootstrapService"
)

func (c *Client) ListWatchedRoots(ctx context.Context) ([]WatchedRoot, error) {
	return invoke[[]WatchedRoot](ctx, c, svcSettings, "ListWatchedRoots")
}

func (c *Client) AddWatchedRoot(ctx context.Context, path string) (WatchedRoot, error) {
	return invoke[WatchedRoot](ctx, c, svcSettings, "AddWatchedRoot", path)
}

func (c *Client) RemoveWatchedRoot(ctx context.Context, id int64) error {
	return c.Call(ctx, svcSettings, "RemoveWatchedRoot", nil, id)
}

func (c *Client) SetWatchedRootEnabled(ctx context.Context, id int64, enabled bool) error {
	return c.Call(ctx, svcSettings, "SetWatchedRootEnabled", nil, id, enabled)
}

func (c *Client) GetStatus(ctx context.Context) (ScanStatus, error) {
	return invoke[ScanStatus](ctx, c, svcScanner, "GetStatus")
}

func (c *Client) TriggerScan(ctx context.Context) error {
	return c.Call(ctx, svcScanner, "TriggerScan", nil)
}

func (c *Client) TriggerFullScan(ctx context.Context) error {
	return c.Call(ctx, svcScanner, "TriggerFullScan", nil)
}

func (c *Client) TriggerIncrementalScan(ctx context.Context) error {
	return c.Call(ctx, svcScanner, "TriggerIncrementalScan", nil)
}

func (c *Client) ListArtists(ctx context.Context, p ListArtistsParams) (ArtistsPage, error) {
	return invoke[ArtistsPage](ctx, c, svcLibrary, "ListArtists", p)
}

func (c *Client) ListAlbums(ctx context.Context, p ListAlbumsParams) (AlbumsPage, error) {
	return invoke[AlbumsPage](ctx, c, svcLibrary, "ListAlbums", p)
}

func (c *Client) ListTracks(ctx context.Context, p ListTracksParams) (TracksPage, error) {
	return invoke[TracksPage](ctx, c, svcLibrary, "ListTracks", p)
}

func (c *Client) GetArtistDetail(ctx context.Context, p ArtistDetailParams) (ArtistDetail, error) {
	return invoke[ArtistDetail](ctx, c, svcLibrary, "GetArtistDetail", p)
}

func (c *Client) GetAlbumDetail(ctx context.Context, p AlbumDetailParams) (AlbumDetail, error) {
	return invoke[AlbumDetail](ctx, c, svcLibrary, "GetAlbumDetail", p)
}

func (c *Client) GetArtistTopTracks(ctx context.Context, artist string, limit int) ([]ArtistTopTrack, error) {
	return invoke[[]ArtistTopTrack](ctx, c, svcLibrary, "GetArtistTopTracks", artist, limit)
}

func (c *Client) GetQueueState(ctx context.Context) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "GetState")
}

func (c *Client) SetQueue(ctx context.Context, trackIDs []int64, startIndex int) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "SetQueue", trackIDs, startIndex)
}

func (c *Client) AppendTracks(ctx context.Context, trackIDs []int64) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "AppendTracks", trackIDs)
}

func (c *Client) RemoveQueueIndex(ctx context.Context, index int) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "RemoveIndex", index)
}

func (c *Client) SetQueueIndex(ctx context.Context, index int) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "SetCurrentIndex", index)
}

func (c *Client) ClearQueue(ctx context.Context) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "Clear")
}

func (c *Client) SetRepeatMode(ctx context.Context, mode string) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "SetRepeatMode", mode)
}

func (c *Client) SetShuffle(ctx context.Context, enabled bool) (QueueState, error) {
	return invoke[QueueState](ctx, c, svcQueue, "SetShuffle", enabled)
}

func (c *Client) GetPlayerState(ctx context.Context) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "GetState")
}

func (c *Client) Play(ctx context.Context) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "Play")
}

func (c *Client) Pause(ctx context.Context) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "Pause")
}

func (c *Client) TogglePlayback(ctx context.Context) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "TogglePlayback")
}

func (c *Client) Stop(ctx context.Context) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "Stop")
}

func (c *Client) Next(ctx context.Context) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "Next")
}

func (c *Client) Previous(ctx context.Context) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "Previous")
}

func (c *Client) Seek(ctx context.Context, positionMS int) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "Seek", positionMS)
}

func (c *Client) SetVolume(ctx context.Context, volume int) (PlayerState, error) {
	return invoke[PlayerState](ctx, c, svcPlayer, "SetVolume", volume)
}

func (c *Client) GetThemeDefaultOptions(ctx context.Context) (ExtractOptions, error) {
	return invoke[ExtractOptions](ctx, c, svcTheme, "GetDefaultOptions")
}

func (c *Client) GenerateThemePalette(ctx context.Context, coverPath string, opts ExtractOptions) (ThemePalette, error) {
	return invoke[ThemePalette](ctx, c, svcTheme, "GenerateFromCover", coverPath, opts)
}

func (c *Client) GetOverview(ctx context.Context, limit int) (Overview, error) {
	return invoke[Overview](ctx, c, svcStats, "GetOverview", limit)
}

func (c *Client) GetDashboard(ctx context.Context, rangeKey string, limit int) (Dashboard, error) {
	return invoke[Dashboard](ctx, c, svcStats, "GetDashboard", rangeKey, limit)
}

func (c *Client) GetInitialState(ctx context.Context, albumsLimit, albumsOffset int) (StartupSnapshot, error) {
	return invoke[StartupSnapshot](ctx, c, svcBootstrap, "GetInitialState", albumsLimit, albumsOffset)
}

// newRequestID returns a time-ordered id, falling back to a random one when
// the v7 generator fails.
func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
