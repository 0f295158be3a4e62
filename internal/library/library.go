// Package library serves library and statistics reads through the query
// cache.
//
// Every read is keyed under one of two roots:
//
//	["library", "artists" | "albums" | "tracks" | "artist-detail" | "album-detail" | "artist-top-tracks", params...]
//	["stats", "overview" | "dashboard", params...]
//
// A completed scan invalidates every prefix in ScanInvalidationPrefixes.
package library

import (
	"context"

	"github.com/roach88/benrt/internal/querycache"
	"github.com/roach88/benrt/internal/querykey"
	"github.com/roach88/benrt/internal/rpc"
)

const (
	rootLibrary = "library"
	rootStats   = "stats"
)

// Key builders. Params structs are part of the key, so equal params share
// one entry.

// ArtistsKey identifies one artists listing page.
func ArtistsKey(p rpc.ListArtistsParams) querykey.Key {
	return querykey.New(rootLibrary, "artists", p)
}

// AlbumsKey identifies one albums listing page.
func AlbumsKey(p rpc.ListAlbumsParams) querykey.Key {
	return querykey.New(rootLibrary, "albums", p)
}

// TracksKey identifies one tracks listing page.
func TracksKey(p rpc.ListTracksParams) querykey.Key {
	return querykey.New(rootLibrary, "tracks", p)
}

// ArtistDetailKey identifies one artist detail view.
func ArtistDetailKey(p rpc.ArtistDetailParams) querykey.Key {
	return querykey.New(rootLibrary, "artist-detail", p)
}

// AlbumDetailKey identifies one album detail view.
func AlbumDetailKey(p rpc.AlbumDetailParams) querykey.Key {
	return querykey.New(rootLibrary, "album-detail", p)
}

// ArtistTopTracksKey identifies the top tracks of artist, capped at limit.
func ArtistTopTracksKey(artist string, limit int) querykey.Key {
	return querykey.New(rootLibrary, "artist-top-tracks", artist, limit)
}

// OverviewKey identifies the statistics overview.
func OverviewKey(limit int) querykey.Key {
	return querykey.New(rootStats, "overview", limit)
}

// DashboardKey identifies the statistics dashboard for one time range.
func DashboardKey(rangeKey string, limit int) querykey.Key {
	return querykey.New(rootStats, "dashboard", rangeKey, limit)
}

// ScanInvalidationPrefixes returns the prefixes made stale by a completed
// scan: all library listings and details, and both statistics views.
func ScanInvalidationPrefixes() []querykey.Key {
	return []querykey.Key{
		querykey.New(rootLibrary),
		querykey.New(rootStats, "overview"),
		querykey.New(rootStats, "dashboard"),
	}
}

// Backend is the part of the remote service the reader calls.
type Backend interface {
	rpc.LibraryService
	rpc.StatsService
}

// Reader performs cached reads. It is safe for concurrent use.
type Reader struct {
	cache   *querycache.Cache
	backend Backend
	opts    querycache.Options
}

// Option configures a Reader.
type Option func(*Reader)

// WithQueryOptions sets the stale and GC times used for every read.
func WithQueryOptions(o querycache.Options) Option {
	return func(r *Reader) { r.opts = o }
}

// New creates a reader over cache.
func New(cache *querycache.Cache, backend Backend, opts ...Option) *Reader {
	r := &Reader{cache: cache, backend: backend}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Artists returns one page of artists.
func (r *Reader) Artists(ctx context.Context, p rpc.ListArtistsParams) (rpc.ArtistsPage, error) {
	return querycache.Read(ctx, r.cache, ArtistsKey(p), func(ctx context.Context) (rpc.ArtistsPage, error) {
		return r.backend.ListArtists(ctx, p)
	}, r.opts)
}

// Albums returns one page of albums.
func (r *Reader) Albums(ctx context.Context, p rpc.ListAlbumsParams) (rpc.AlbumsPage, error) {
	return querycache.Read(ctx, r.cache, AlbumsKey(p), r.albumsFetch(p), r.opts)
}

// Tracks returns one page of tracks.
func (r *Reader) Tracks(ctx context.Context, p rpc.ListTracksParams) (rpc.TracksPage, error) {
	return querycache.Read(ctx, r.cache, TracksKey(p), func(ctx context.Context) (rpc.TracksPage, error) {
		return r.backend.ListTracks(ctx, p)
	}, r.opts)
}

// ArtistDetail returns an artist with its albums.
func (r *Reader) ArtistDetail(ctx context.Context, p rpc.ArtistDetailParams) (rpc.ArtistDetail, error) {
	return querycache.Read(ctx, r.cache, ArtistDetailKey(p), func(ctx context.Context) (rpc.ArtistDetail, error) {
		return r.backend.GetArtistDetail(ctx, p)
	}, r.opts)
}

// AlbumDetail returns an album with its tracks.
func (r *Reader) AlbumDetail(ctx context.Context, p rpc.AlbumDetailParams) (rpc.AlbumDetail, error) {
	return querycache.Read(ctx, r.cache, AlbumDetailKey(p), func(ctx context.Context) (rpc.AlbumDetail, error) {
		return r.backend.GetAlbumDetail(ctx, p)
	}, r.opts)
}

// ArtistTopTracks returns the most played tracks of artist.
func (r *Reader) ArtistTopTracks(ctx context.Context, artist string, limit int) ([]rpc.ArtistTopTrack, error) {
	return querycache.Read(ctx, r.cache, ArtistTopTracksKey(artist, limit), func(ctx context.Context) ([]rpc.ArtistTopTrack, error) {
		return r.backend.GetArtistTopTracks(ctx, artist, limit)
	}, r.opts)
}

// Overview returns library totals and recent activity.
func (r *Reader) Overview(ctx context.Context, limit int) (rpc.Overview, error) {
	return querycache.Read(ctx, r.cache, OverviewKey(limit), func(ctx context.Context) (rpc.Overview, error) {
		return r.backend.GetOverview(ctx, limit)
	}, r.opts)
}

// Dashboard returns listening statistics for rangeKey.
func (r *Reader) Dashboard(ctx context.Context, rangeKey string, limit int) (rpc.Dashboard, error) {
	return querycache.Read(ctx, r.cache, DashboardKey(rangeKey, limit), func(ctx context.Context) (rpc.Dashboard, error) {
		return r.backend.GetDashboard(ctx, rangeKey, limit)
	}, r.opts)
}

// SeedAlbums stores a page obtained elsewhere, such as the startup snapshot,
// under the albums key for p.
func (r *Reader) SeedAlbums(p rpc.ListAlbumsParams, page rpc.AlbumsPage) error {
	return r.cache.SetData(AlbumsKey(p), page)
}

// ObserveAlbums keeps the albums page for p live. The caller must Close the
// observer; use querycache.DataAs[rpc.AlbumsPage] on its snapshots.
func (r *Reader) ObserveAlbums(p rpc.ListAlbumsParams) (*querycache.Observer, error) {
	return r.cache.Observe(AlbumsKey(p), erase(r.albumsFetch(p)), r.opts)
}

func (r *Reader) albumsFetch(p rpc.ListAlbumsParams) func(context.Context) (rpc.AlbumsPage, error) {
	return func(ctx context.Context) (rpc.AlbumsPage, error) {
		return r.backend.ListAlbums(ctx, p)
	}
}

func erase[T any](fetch func(context.Context) (T, error)) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}
