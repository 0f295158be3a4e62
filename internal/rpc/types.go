package rpc

// PageInfo describes one page of a listing.
type PageInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// ArtistSummary is one row of the artists listing.
type ArtistSummary struct {
	Name       string `json:"name"`
	TrackCount int    `json:"trackCount"`
	AlbumCount int    `json:"albumCount"`
}

// AlbumSummary is one row of the albums listing.
type AlbumSummary struct {
	Title       string  `json:"title"`
	AlbumArtist string  `json:"albumArtist"`
	Year        *int    `json:"year,omitempty"`
	TrackCount  int     `json:"trackCount"`
	CoverPath   *string `json:"coverPath,omitempty"`
}

// TrackSummary is one track as listed, queued or playing.
type TrackSummary struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	AlbumArtist string  `json:"albumArtist"`
	DiscNo      *int    `json:"discNo,omitempty"`
	TrackNo     *int    `json:"trackNo,omitempty"`
	DurationMS  *int    `json:"durationMs,omitempty"`
	Path        string  `json:"path"`
	CoverPath   *string `json:"coverPath,omitempty"`
}

type ArtistsPage struct {
	Items []ArtistSummary `json:"items"`
	Page  PageInfo        `json:"page"`
}

type AlbumsPage struct {
	Items []AlbumSummary `json:"items"`
	Page  PageInfo       `json:"page"`
}

type TracksPage struct {
	Items []TrackSummary `json:"items"`
	Page  PageInfo       `json:"page"`
}

type ArtistDetail struct {
	Name       string         `json:"name"`
	TrackCount int            `json:"trackCount"`
	AlbumCount int            `json:"albumCount"`
	Albums     []AlbumSummary `json:"albums"`
	Page       PageInfo       `json:"page"`
}

type AlbumDetail struct {
	Title       string         `json:"title"`
	AlbumArtist string         `json:"albumArtist"`
	Year        *int           `json:"year,omitempty"`
	TrackCount  int            `json:"trackCount"`
	CoverPath   *string        `json:"coverPath,omitempty"`
	Tracks      []TrackSummary `json:"tracks"`
	Page        PageInfo       `json:"page"`
}

// ArtistTopTrack is a track ranked by listening stats.
type ArtistTopTrack struct {
	TrackID       int64   `json:"trackId"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	Album         string  `json:"album"`
	AlbumArtist   string  `json:"albumArtist"`
	DurationMS    *int    `json:"durationMs,omitempty"`
	Path          string  `json:"path"`
	CoverPath     *string `json:"coverPath,omitempty"`
	PlayedMS      int     `json:"playedMs"`
	CompleteCount int     `json:"completeCount"`
	SkipCount     int     `json:"skipCount"`
	PartialCount  int     `json:"partialCount"`
}

// ListArtistsParams selects a page of artists.
type ListArtistsParams struct {
	Search string `json:"search"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ListAlbumsParams selects a page of albums.
type ListAlbumsParams struct {
	Search string `json:"search"`
	Artist string `json:"artist"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ListTracksParams selects a page of tracks.
type ListTracksParams struct {
	Search string `json:"search"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ArtistDetailParams selects an artist and a page of their albums.
type ArtistDetailParams struct {
	Name   string `json:"name"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// AlbumDetailParams selects an album and a page of its tracks.
type AlbumDetailParams struct {
	Title       string `json:"title"`
	AlbumArtist string `json:"albumArtist"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
}

// WatchedRoot is a folder the scanner indexes.
type WatchedRoot struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"createdAt"`
}

// Scan progress statuses.
const (
	ScanRunning   = "running"
	ScanCompleted = "completed"
	ScanFailed    = "failed"
)

// ScanProgress is the scanner:progress push payload.
type ScanProgress struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
	At      string `json:"at"`
}

// Terminal reports whether the scan this progress belongs to has ended.
func (p ScanProgress) Terminal() bool {
	return p.Status == ScanCompleted || p.Status == ScanFailed
}

// ScanStatus is the scanner's full state.
type ScanStatus struct {
	Running       bool   `json:"running"`
	LastRunAt     string `json:"lastRunAt"`
	LastMode      string `json:"lastMode,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	LastFilesSeen int    `json:"lastFilesSeen"`
	LastIndexed   int    `json:"lastIndexed"`
	LastSkipped   int    `json:"lastSkipped"`
}

// Repeat modes.
const (
	RepeatOff = "off"
	RepeatAll = "all"
	RepeatOne = "one"
)

// QueueState is the queue:state push payload and the result of every queue
// call.
type QueueState struct {
	Entries      []TrackSummary `json:"entries"`
	CurrentIndex int            `json:"currentIndex"`
	CurrentTrack *TrackSummary  `json:"currentTrack,omitempty"`
	RepeatMode   string         `json:"repeatMode"`
	Shuffle      bool           `json:"shuffle"`
	Total        int            `json:"total"`
	UpdatedAt    string         `json:"updatedAt"`
}

// Player statuses.
const (
	PlayerIdle    = "idle"
	PlayerPaused  = "paused"
	PlayerPlaying = "playing"
)

// PlayerState is the player:state push payload and the result of every
// player call.
type PlayerState struct {
	Status       string        `json:"status"`
	PositionMS   int           `json:"positionMs"`
	Volume       int           `json:"volume"`
	CurrentTrack *TrackSummary `json:"currentTrack,omitempty"`
	CurrentIndex int           `json:"currentIndex"`
	QueueLength  int           `json:"queueLength"`
	DurationMS   *int          `json:"durationMs,omitempty"`
	UpdatedAt    string        `json:"updatedAt"`
}

// ExtractOptions are the palette extraction parameters.
type ExtractOptions struct {
	MaxDimension     int     `json:"maxDimension"`
	Quality          int     `json:"quality"`
	ColorCount       int     `json:"colorCount"`
	CandidateCount   int     `json:"candidateCount"`
	QuantizationBits int     `json:"quantizationBits"`
	AlphaThreshold   int     `json:"alphaThreshold"`
	IgnoreNearWhite  bool    `json:"ignoreNearWhite"`
	IgnoreNearBlack  bool    `json:"ignoreNearBlack"`
	MinLuma          float64 `json:"minLuma"`
	MaxLuma          float64 `json:"maxLuma"`
	MinChroma        float64 `json:"minChroma"`
	TargetChroma     float64 `json:"targetChroma"`
	MaxChroma        float64 `json:"maxChroma"`
	MinDelta         float64 `json:"minDelta"`
	WorkerCount      int     `json:"workerCount"`
}

// PaletteColor is one extracted color.
type PaletteColor struct {
	Hex        string  `json:"hex"`
	R          int     `json:"r"`
	G          int     `json:"g"`
	B          int     `json:"b"`
	Population int     `json:"population"`
	Lightness  float64 `json:"lightness"`
	Chroma     float64 `json:"chroma"`
	Hue        float64 `json:"hue"`
}

// ThemePalette is the palette generated from a cover image.
type ThemePalette struct {
	Primary   *PaletteColor  `json:"primary,omitempty"`
	Secondary *PaletteColor  `json:"secondary,omitempty"`
	Tertiary  *PaletteColor  `json:"tertiary,omitempty"`
	Dark      *PaletteColor  `json:"dark,omitempty"`
	Light     *PaletteColor  `json:"light,omitempty"`
	Accent    *PaletteColor  `json:"accent,omitempty"`
	Gradient  []PaletteColor `json:"gradient"`
}

// TrackStat is a track ranked by listening time.
type TrackStat struct {
	TrackID       int64   `json:"trackId"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	Album         string  `json:"album"`
	CoverPath     *string `json:"coverPath,omitempty"`
	PlayedMS      int     `json:"playedMs"`
	CompleteCount int     `json:"completeCount"`
	SkipCount     int     `json:"skipCount"`
	PartialCount  int     `json:"partialCount"`
}

// ArtistStat is an artist ranked by listening time.
type ArtistStat struct {
	Name       string `json:"name"`
	PlayedMS   int    `json:"playedMs"`
	TrackCount int    `json:"trackCount"`
}

// Overview is the short listening summary.
type Overview struct {
	TotalPlayedMS int          `json:"totalPlayedMs"`
	TracksPlayed  int          `json:"tracksPlayed"`
	CompleteCount int          `json:"completeCount"`
	SkipCount     int          `json:"skipCount"`
	PartialCount  int          `json:"partialCount"`
	TopTracks     []TrackStat  `json:"topTracks"`
	TopArtists    []ArtistStat `json:"topArtists"`
}

// DashboardSummary aggregates a dashboard range.
type DashboardSummary struct {
	TotalPlayedMS  int     `json:"totalPlayedMs"`
	TotalPlays     int     `json:"totalPlays"`
	TracksPlayed   int     `json:"tracksPlayed"`
	ArtistsPlayed  int     `json:"artistsPlayed"`
	AlbumsPlayed   int     `json:"albumsPlayed"`
	CompletionRate float64 `json:"completionRate"`
	SkipRate       float64 `json:"skipRate"`
}

// Dashboard is the full statistics view. Sections the runtime never reads
// are kept opaque.
type Dashboard struct {
	Range       string           `json:"range"`
	WindowStart *string          `json:"windowStart,omitempty"`
	GeneratedAt string           `json:"generatedAt"`
	Summary     DashboardSummary `json:"summary"`
	TopTracks   []TrackStat      `json:"topTracks"`
	TopArtists  []ArtistStat     `json:"topArtists"`
	PeakHour    int              `json:"peakHour"`
	PeakWeekday int              `json:"peakWeekday"`
}

// Theme mode preferences.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// StartupSnapshot is the bootstrap payload.
type StartupSnapshot struct {
	QueueState          QueueState  `json:"queueState"`
	PlayerState         PlayerState `json:"playerState"`
	ScanStatus          ScanStatus  `json:"scanStatus"`
	AlbumsPage          AlbumsPage  `json:"albumsPage"`
	ThemeModePreference string      `json:"themeModePreference"`
}
