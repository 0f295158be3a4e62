// Package rpc holds the backend payload types, the per-service call
// surfaces the runtime depends on, and an HTTP JSON transport for them.
package rpc

import "context"

// SettingsService manages watched folders.
type SettingsService interface {
	ListWatchedRoots(ctx context.Context) ([]WatchedRoot, error)
	AddWatchedRoot(ctx context.Context, path string) (WatchedRoot, error)
	RemoveWatchedRoot(ctx context.Context, id int64) error
	SetWatchedRootEnabled(ctx context.Context, id int64, enabled bool) error
}

// ScannerService drives library scans.
type ScannerService interface {
	GetStatus(ctx context.Context) (ScanStatus, error)
	TriggerScan(ctx context.Context) error
	TriggerFullScan(ctx context.Context) error
	TriggerIncrementalScan(ctx context.Context) error
}

// LibraryService serves library reads.
type LibraryService interface {
	ListArtists(ctx context.Context, p ListArtistsParams) (ArtistsPage, error)
	ListAlbums(ctx context.Context, p ListAlbumsParams) (AlbumsPage, error)
	ListTracks(ctx context.Context, p ListTracksParams) (TracksPage, error)
	GetArtistDetail(ctx context.Context, p ArtistDetailParams) (ArtistDetail, error)
	GetAlbumDetail(ctx context.Context, p AlbumDetailParams) (AlbumDetail, error)
	GetArtistTopTracks(ctx context.Context, artist string, limit int) ([]ArtistTopTrack, error)
}

// QueueService mutates the play queue. Every call returns the resulting
// queue.
type QueueService interface {
	GetQueueState(ctx context.Context) (QueueState, error)
	SetQueue(ctx context.Context, trackIDs []int64, startIndex int) (QueueState, error)
	AppendTracks(ctx context.Context, trackIDs []int64) (QueueState, error)
	RemoveQueueIndex(ctx context.Context, index int) (QueueState, error)
	SetQueueIndex(ctx context.Context, index int) (QueueState, error)
	ClearQueue(ctx context.Context) (QueueState, error)
	SetRepeatMode(ctx context.Context, mode string) (QueueState, error)
	SetShuffle(ctx context.Context, enabled bool) (QueueState, error)
}

// PlayerService drives playback. Every call returns the resulting player
// state.
type PlayerService interface {
	GetPlayerState(ctx context.Context) (PlayerState, error)
	Play(ctx context.Context) (PlayerState, error)
	Pause(ctx context.Context) (PlayerState, error)
	TogglePlayback(ctx context.Context) (PlayerState, error)
	Stop(ctx context.Context) (PlayerState, error)
	Next(ctx context.Context) (PlayerState, error)
	Previous(ctx context.Context) (PlayerState, error)
	Seek(ctx context.Context, positionMS int) (PlayerState, error)
	SetVolume(ctx context.Context, volume int) (PlayerState, error)
}

// ThemeService generates palettes from cover art.
type ThemeService interface {
	GetThemeDefaultOptions(ctx context.Context) (ExtractOptions, error)
	GenerateThemePalette(ctx context.Context, coverPath string, opts ExtractOptions) (ThemePalette, error)
}

// StatsService serves listening statistics.
type StatsService interface {
	GetOverview(ctx context.Context, limit int) (Overview, error)
	GetDashboard(ctx context.Context, rangeKey string, limit int) (Dashboard, error)
}

// BootstrapService returns the startup snapshot.
type BootstrapService interface {
	GetInitialState(ctx context.Context, albumsLimit, albumsOffset int) (StartupSnapshot, error)
}

// Backend is every service the runtime talks to.
type Backend interface {
	SettingsService
	ScannerService
	LibraryService
	QueueService
	PlayerService
	ThemeService
	StatsService
	BootstrapService
}
