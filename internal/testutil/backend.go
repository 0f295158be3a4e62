package testutil

import (
	"context"
	"fmt"
	"hash/crc32"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/benrt/internal/clock"
	"github.com/roach88/benrt/internal/rpc"
)

// Emitter receives the push events a FakeBackend produces after state
// changes, by wire name.
type Emitter interface {
	Emit(name string, payload any)
}

// StampLayout is the fixed-width timestamp layout used for UpdatedAt.
const StampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FakeBackend is an in-memory rpc.Backend with a small seeded catalog.
// Failures and blocking hooks can be scripted per method name. It is safe
// for concurrent use.
type FakeBackend struct {
	mu sync.Mutex

	clock   clock.Clock
	emitter Emitter
	stamps  int

	roots      []rpc.WatchedRoot
	nextRootID int64
	status     rpc.ScanStatus
	tracks     []rpc.TrackSummary
	queue      rpc.QueueState
	player     rpc.PlayerState
	options    rpc.ExtractOptions
	palettes   map[string]rpc.ThemePalette
	overview   rpc.Overview
	dashboard  rpc.Dashboard
	themeMode  string

	calls    []string
	failNext map[string][]error
	failAll  map[string]error
	hooks    map[string]func(ctx context.Context) error
}

var _ rpc.Backend = (*FakeBackend)(nil)

// NewFakeBackend creates a backend seeded with SeedTracks. A nil clock uses
// a FakeClock at Epoch.
func NewFakeBackend(clk clock.Clock) *FakeBackend {
	if clk == nil {
		clk = NewFakeClock(time.Time{})
	}
	b := &FakeBackend{
		clock:      clk,
		nextRootID: 1,
		tracks:     SeedTracks(),
		options:    DefaultExtractOptions(),
		palettes:   make(map[string]rpc.ThemePalette),
		themeMode:  rpc.ThemeSystem,
		failNext:   make(map[string][]error),
		failAll:    make(map[string]error),
		hooks:      make(map[string]func(ctx context.Context) error),
	}
	b.queue = rpc.QueueState{CurrentIndex: -1, RepeatMode: rpc.RepeatOff, UpdatedAt: b.stampLocked()}
	b.player = rpc.PlayerState{Status: rpc.PlayerIdle, Volume: 70, CurrentIndex: -1, UpdatedAt: b.stampLocked()}
	b.status = rpc.ScanStatus{LastRunAt: b.clock.Now().Format(time.RFC3339)}
	return b
}

func strptr(s string) *string { return &s }
func intptr(n int) *int       { return &n }

// SeedTracks returns the default catalog: two artists, three albums.
func SeedTracks() []rpc.TrackSummary {
	track := func(id int64, title, artist, album string, no, ms int) rpc.TrackSummary {
		return rpc.TrackSummary{
			ID:          id,
			Title:       title,
			Artist:      artist,
			Album:       album,
			AlbumArtist: artist,
			TrackNo:     intptr(no),
			DurationMS:  intptr(ms),
			Path:        fmt.Sprintf("/music/%s/%s/%02d.flac", artist, album, no),
			CoverPath:   strptr(fmt.Sprintf("/covers/%s-%s.jpg", artist, album)),
		}
	}
	return []rpc.TrackSummary{
		track(1, "Dawn", "Aurora Fields", "First Light", 1, 201000),
		track(2, "Noon", "Aurora Fields", "First Light", 2, 184000),
		track(3, "Dusk", "Aurora Fields", "First Light", 3, 232000),
		track(4, "Harbor", "Aurora Fields", "Tides", 1, 198000),
		track(5, "Signal", "Bellwether", "Relay", 1, 175000),
		track(6, "Static", "Bellwether", "Relay", 2, 240000),
	}
}

// DefaultExtractOptions returns the options the fake reports as defaults.
func DefaultExtractOptions() rpc.ExtractOptions {
	return rpc.ExtractOptions{
		MaxDimension:     220,
		Quality:          2,
		ColorCount:       6,
		CandidateCount:   24,
		QuantizationBits: 5,
		AlphaThreshold:   16,
		IgnoreNearWhite:  true,
		IgnoreNearBlack:  true,
		MinLuma:          0.08,
		MaxLuma:          0.92,
		MinChroma:        0.08,
		TargetChroma:     0.14,
		MaxChroma:        0.32,
		MinDelta:         0.08,
		WorkerCount:      2,
	}
}

// SetEmitter sets where push events go.
func (b *FakeBackend) SetEmitter(e Emitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emitter = e
}

// FailNext makes the next call of method return err. Calls queue up.
func (b *FakeBackend) FailNext(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext[method] = append(b.failNext[method], err)
}

// FailAlways makes every call of method return err. A nil err clears it.
func (b *FakeBackend) FailAlways(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failAll, method)
		return
	}
	b.failAll[method] = err
}

// Hook runs fn at the start of every call of method, before any state
// change. A non-nil error from fn fails the call.
func (b *FakeBackend) Hook(method string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.hooks, method)
		return
	}
	b.hooks[method] = fn
}

// Calls returns the method names called so far, in order.
func (b *FakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// CallCount returns how many times method was called.
func (b *FakeBackend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == method {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls.
func (b *FakeBackend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// SetStatus replaces the scan status.
func (b *FakeBackend) SetStatus(s rpc.ScanStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// SetPalette fixes the palette returned for coverPath.
func (b *FakeBackend) SetPalette(coverPath string, p rpc.ThemePalette) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.palettes[coverPath] = p
}

// SetThemeMode sets the preference reported in the startup snapshot.
func (b *FakeBackend) SetThemeMode(mode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.themeMode = mode
}

// SetOverview sets the stats overview.
func (b *FakeBackend) SetOverview(o rpc.Overview) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overview = o
}

// AddTrack appends a track to the catalog, as a finished scan would.
func (b *FakeBackend) AddTrack(t rpc.TrackSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracks = append(b.tracks, t)
}

// Queue returns the backend's queue state.
func (b *FakeBackend) Queue() rpc.QueueState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue
}

// Player returns the backend's player state.
func (b *FakeBackend) Player() rpc.PlayerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.player
}

// enter records the call, runs its hook and returns the scripted failure,
// if any.
func (b *FakeBackend) enter(ctx context.Context, method string) error {
	b.mu.Lock()
	b.calls = append(b.calls, method)
	hook := b.hooks[method]
	b.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if errs := b.failNext[method]; len(errs) > 0 {
		b.failNext[method] = errs[1:]
		return errs[0]
	}
	return b.failAll[method]
}

func (b *FakeBackend) stampLocked() string {
	b.stamps++
	return b.clock.Now().Add(time.Duration(b.stamps) * time.Microsecond).UTC().Format(StampLayout)
}

// emit must be called without b.mu held.
func (b *FakeBackend) emit(name string, payload any) {
	b.mu.Lock()
	e := b.emitter
	b.mu.Unlock()
	if e != nil {
		e.Emit(name, payload)
	}
}

func (b *FakeBackend) ListWatchedRoots(ctx context.Context) ([]rpc.WatchedRoot, error) {
	if err := b.enter(ctx, "ListWatchedRoots"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.roots), nil
}

func (b *FakeBackend) AddWatchedRoot(ctx context.Context, path string) (rpc.WatchedRoot, error) {
	if err := b.enter(ctx, "AddWatchedRoot"); err != nil {
		return rpc.WatchedRoot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.roots {
		if r.Path == path {
			return rpc.WatchedRoot{}, fmt.Errorf("folder %q is already watched", path)
		}
	}
	root := rpc.WatchedRoot{
		ID:        b.nextRootID,
		Path:      path,
		Enabled:   true,
		CreatedAt: b.clock.Now().UTC().Format(time.RFC3339),
	}
	b.nextRootID++
	b.roots = append(b.roots, root)
	return root, nil
}

func (b *FakeBackend) RemoveWatchedRoot(ctx context.Context, id int64) error {
	if err := b.enter(ctx, "RemoveWatchedRoot"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.roots, func(r rpc.WatchedRoot) bool { return r.ID == id })
	if i < 0 {
		return fmt.Errorf("watched folder %d not found", id)
	}
	b.roots = slices.Delete(b.roots, i, i+1)
	return nil
}

func (b *FakeBackend) SetWatchedRootEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := b.enter(ctx, "SetWatchedRootEnabled"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.roots {
		if b.roots[i].ID == id {
			b.roots[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("watched folder %d not found", id)
}

func (b *FakeBackend) GetStatus(ctx context.Context) (rpc.ScanStatus, error) {
	if err := b.enter(ctx, "GetStatus"); err != nil {
		return rpc.ScanStatus{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, nil
}

func (b *FakeBackend) TriggerScan(ctx context.Context) error {
	return b.trigger(ctx, "TriggerScan", "incremental")
}

func (b *FakeBackend) TriggerFullScan(ctx context.Context) error {
	return b.trigger(ctx, "TriggerFullScan", "full")
}

func (b *FakeBackend) TriggerIncrementalScan(ctx context.Context) error {
	return b.trigger(ctx, "TriggerIncrementalScan", "incremental")
}

func (b *FakeBackend) trigger(ctx context.Context, method, mode string) error {
	if err := b.enter(ctx, method); err != nil {
		return err
	}
	b.mu.Lock()
	if b.status.Running {
		b.mu.Unlock()
		return fmt.Errorf("scan already running")
	}
	b.status.Running = true
	b.status.LastMode = mode
	progress := rpc.ScanProgress{
		Phase:   "walk",
		Message: "scan started",
		Status:  rpc.ScanRunning,
		At:      b.clock.Now().UTC().Format(time.RFC3339),
	}
	b.mu.Unlock()
	b.emit("scanner:progress", progress)
	return nil
}

// FinishScan completes the running scan and emits the terminal progress
// event with status (rpc.ScanCompleted or rpc.ScanFailed).
func (b *FakeBackend) FinishScan(status string) {
	b.mu.Lock()
	b.status.Running = false
	b.status.LastRunAt = b.clock.Now().UTC().Format(time.RFC3339)
	b.status.LastFilesSeen = len(b.tracks)
	b.status.LastIndexed = len(b.tracks)
	if status == rpc.ScanFailed {
		b.status.LastError = "scan failed"
	} else {
		b.status.LastError = ""
	}
	progress := rpc.ScanProgress{
		Phase:   "done",
		Message: "scan " + status,
		Percent: 100,
		Status:  status,
		At:      b.status.LastRunAt,
	}
	b.mu.Unlock()
	b.emit("scanner:progress", progress)
}

type albumKey struct{ title, artist string }

func (b *FakeBackend) albumsLocked(search, artist string) []rpc.AlbumSummary {
	var out []rpc.AlbumSummary
	index := make(map[albumKey]int)
	for _, t := range b.tracks {
		if artist != "" && t.AlbumArtist != artist {
			continue
		}
		if !matches(search, t.Album, t.AlbumArtist) {
			continue
		}
		k := albumKey{t.Album, t.AlbumArtist}
		if i, ok := index[k]; ok {
			out[i].TrackCount++
			continue
		}
		index[k] = len(out)
		out = append(out, rpc.AlbumSummary{
			Title:       t.Album,
			AlbumArtist: t.AlbumArtist,
			TrackCount:  1,
			CoverPath:   t.CoverPath,
		})
	}
	return out
}

func (b *FakeBackend) artistsLocked(search string) []rpc.ArtistSummary {
	var out []rpc.ArtistSummary
	index := make(map[string]int)
	albums := make(map[albumKey]bool)
	for _, t := range b.tracks {
		if !matches(search, t.AlbumArtist) {
			continue
		}
		i, ok := index[t.AlbumArtist]
		if !ok {
			i = len(out)
			index[t.AlbumArtist] = i
			out = append(out, rpc.ArtistSummary{Name: t.AlbumArtist})
		}
		out[i].TrackCount++
		k := albumKey{t.Album, t.AlbumArtist}
		if !albums[k] {
			albums[k] = true
			out[i].AlbumCount++
		}
	}
	return out
}

func matches(search string, fields ...string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) ([]T, rpc.PageInfo) {
	info := rpc.PageInfo{Limit: limit, Offset: offset, Total: len(items)}
	if offset >= len(items) {
		return []T{}, info
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Clone(items[offset:end]), info
}

func (b *FakeBackend) ListArtists(ctx context.Context, p rpc.ListArtistsParams) (rpc.ArtistsPage, error) {
	if err := b.enter(ctx, "ListArtists"); err != nil {
		return rpc.ArtistsPage{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	items, info := page(b.artistsLocked(p.Search), p.Limit, p.Offset)
	return rpc.ArtistsPage{Items: items, Page: info}, nil
}

func (b *FakeBackend) ListAlbums(ctx context.Context, p rpc.ListAlbumsParams) (rpc.AlbumsPage, error) {
	if err := b.enter(ctx, "ListAlbums"); err != nil {
		return rpc.AlbumsPage{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.albumsPageLocked(p), nil
}

func (b *FakeBackend) albumsPageLocked(p rpc.ListAlbumsParams) rpc.AlbumsPage {
	items, info := page(b.albumsLocked(p.Search, p.Artist), p.Limit, p.Offset)
	return rpc.AlbumsPage{Items: items, Page: info}
}

func (b *FakeBackend) ListTracks(ctx context.Context, p rpc.ListTracksParams) (rpc.TracksPage, error) {
	if err := b.enter(ctx, "ListTracks"); err != nil {
		return rpc.TracksPage{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var filtered []rpc.TrackSummary
	for _, t := range b.tracks {
		if p.Artist != "" && t.Artist != p.Artist {
			continue
		}
		if p.Album != "" && t.Album != p.Album {
			continue
		}
		if matches(p.Search, t.Title, t.Artist, t.Album) {
			filtered = append(filtered, t)
		}
	}
	items, info := page(filtered, p.Limit, p.Offset)
	return rpc.TracksPage{Items: items, Page: info}, nil
}

func (b *FakeBackend) GetArtistDetail(ctx context.Context, p rpc.ArtistDetailParams) (rpc.ArtistDetail, error) {
	if err := b.enter(ctx, "GetArtistDetail"); err != nil {
		return rpc.ArtistDetail{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.artistsLocked("") {
		if a.Name != p.Name {
			continue
		}
		albums, info := page(b.albumsLocked("", p.Name), p.Limit, p.Offset)
		return rpc.ArtistDetail{
			Name:       a.Name,
			TrackCount: a.TrackCount,
			AlbumCount: a.AlbumCount,
			Albums:     albums,
			Page:       info,
		}, nil
	}
	return rpc.ArtistDetail{}, fmt.Errorf("artist %q not found", p.Name)
}

func (b *FakeBackend) GetAlbumDetail(ctx context.Context, p rpc.AlbumDetailParams) (rpc.AlbumDetail, error) {
	if err := b.enter(ctx, "GetAlbumDetail"); err != nil {
		return rpc.AlbumDetail{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var tracks []rpc.TrackSummary
	for _, t := range b.tracks {
		if t.Album == p.Title && t.AlbumArtist == p.AlbumArtist {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == 0 {
		return rpc.AlbumDetail{}, fmt.Errorf("album %q by %q not found", p.Title, p.AlbumArtist)
	}
	items, info := page(tracks, p.Limit, p.Offset)
	return rpc.AlbumDetail{
		Title:       p.Title,
		AlbumArtist: p.AlbumArtist,
		TrackCount:  len(tracks),
		CoverPath:   tracks[0].CoverPath,
		Tracks:      items,
		Page:        info,
	}, nil
}

func (b *FakeBackend) GetArtistTopTracks(ctx context.Context, artist string, limit int) ([]rpc.ArtistTopTrack, error) {
	if err := b.enter(ctx, "GetArtistTopTracks"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []rpc.ArtistTopTrack
	for _, t := range b.tracks {
		if t.AlbumArtist != artist {
			continue
		}
		out = append(out, rpc.ArtistTopTrack{
			TrackID:     t.ID,
			Title:       t.Title,
			Artist:      t.Artist,
			Album:       t.Album,
			AlbumArtist: t.AlbumArtist,
			DurationMS:  t.DurationMS,
			Path:        t.Path,
			CoverPath:   t.CoverPath,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *FakeBackend) trackLocked(id int64) (rpc.TrackSummary, bool) {
	i := slices.IndexFunc(b.tracks, func(t rpc.TrackSummary) bool { return t.ID == id })
	if i < 0 {
		return rpc.TrackSummary{}, false
	}
	return b.tracks[i], true
}

// syncLocked recomputes derived queue and player fields after a queue
// change.
func (b *FakeBackend) syncLocked() {
	q := &b.queue
	q.Total = len(q.Entries)
	if q.Total == 0 {
		q.CurrentIndex = -1
	} else if q.CurrentIndex >= q.Total {
		q.CurrentIndex = q.Total - 1
	}
	q.CurrentTrack = nil
	if q.CurrentIndex >= 0 {
		t := q.Entries[q.CurrentIndex]
		q.CurrentTrack = &t
	}
	q.UpdatedAt = b.stampLocked()

	p := &b.player
	p.CurrentTrack = q.CurrentTrack
	p.CurrentIndex = q.CurrentIndex
	p.QueueLength = q.Total
	p.DurationMS = nil
	if q.CurrentTrack != nil {
		p.DurationMS = q.CurrentTrack.DurationMS
	} else {
		p.Status = rpc.PlayerIdle
		p.PositionMS = 0
	}
	p.UpdatedAt = b.stampLocked()
}

func (b *FakeBackend) queueChanged() rpc.QueueState {
	b.mu.Lock()
	b.syncLocked()
	q, p := b.cloneQueueLocked(), b.player
	b.mu.Unlock()
	b.emit("queue:state", q)
	b.emit("player:state", p)
	return q
}

func (b *FakeBackend) cloneQueueLocked() rpc.QueueState {
	q := b.queue
	q.Entries = slices.Clone(q.Entries)
	return q
}

func (b *FakeBackend) GetQueueState(ctx context.Context) (rpc.QueueState, error) {
	if err := b.enter(ctx, "GetQueueState"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cloneQueueLocked(), nil
}

func (b *FakeBackend) SetQueue(ctx context.Context, trackIDs []int64, startIndex int) (rpc.QueueState, error) {
	if err := b.enter(ctx, "SetQueue"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	entries := make([]rpc.TrackSummary, 0, len(trackIDs))
	for _, id := range trackIDs {
		t, ok := b.trackLocked(id)
		if !ok {
			b.mu.Unlock()
			return rpc.QueueState{}, fmt.Errorf("track %d not found", id)
		}
		entries = append(entries, t)
	}
	if startIndex < 0 || (len(entries) > 0 && startIndex >= len(entries)) {
		b.mu.Unlock()
		return rpc.QueueState{}, fmt.Errorf("start index %d out of range", startIndex)
	}
	b.queue.Entries = entries
	b.queue.CurrentIndex = startIndex
	if len(entries) > 0 {
		b.player.Status = rpc.PlayerPlaying
		b.player.PositionMS = 0
	}
	b.mu.Unlock()
	return b.queueChanged(), nil
}

func (b *FakeBackend) AppendTracks(ctx context.Context, trackIDs []int64) (rpc.QueueState, error) {
	if err := b.enter(ctx, "AppendTracks"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	for _, id := range trackIDs {
		t, ok := b.trackLocked(id)
		if !ok {
			b.mu.Unlock()
			return rpc.QueueState{}, fmt.Errorf("track %d not found", id)
		}
		b.queue.Entries = append(b.queue.Entries, t)
	}
	if b.queue.CurrentIndex < 0 && len(b.queue.Entries) > 0 {
		b.queue.CurrentIndex = 0
	}
	b.mu.Unlock()
	return b.queueChanged(), nil
}

func (b *FakeBackend) RemoveQueueIndex(ctx context.Context, index int) (rpc.QueueState, error) {
	if err := b.enter(ctx, "RemoveQueueIndex"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	if index < 0 || index >= len(b.queue.Entries) {
		b.mu.Unlock()
		return rpc.QueueState{}, fmt.Errorf("queue index %d out of range", index)
	}
	b.queue.Entries = slices.Delete(b.queue.Entries, index, index+1)
	if index < b.queue.CurrentIndex {
		b.queue.CurrentIndex--
	}
	b.mu.Unlock()
	return b.queueChanged(), nil
}

func (b *FakeBackend) SetQueueIndex(ctx context.Context, index int) (rpc.QueueState, error) {
	if err := b.enter(ctx, "SetQueueIndex"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	if index < 0 || index >= len(b.queue.Entries) {
		b.mu.Unlock()
		return rpc.QueueState{}, fmt.Errorf("queue index %d out of range", index)
	}
	b.queue.CurrentIndex = index
	b.player.PositionMS = 0
	b.mu.Unlock()
	return b.queueChanged(), nil
}

func (b *FakeBackend) ClearQueue(ctx context.Context) (rpc.QueueState, error) {
	if err := b.enter(ctx, "ClearQueue"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	b.queue.Entries = nil
	b.queue.CurrentIndex = -1
	b.mu.Unlock()
	return b.queueChanged(), nil
}

func (b *FakeBackend) SetRepeatMode(ctx context.Context, mode string) (rpc.QueueState, error) {
	if err := b.enter(ctx, "SetRepeatMode"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	b.queue.RepeatMode = mode
	b.mu.Unlock()
	return b.queueChanged(), nil
}

func (b *FakeBackend) SetShuffle(ctx context.Context, enabled bool) (rpc.QueueState, error) {
	if err := b.enter(ctx, "SetShuffle"); err != nil {
		return rpc.QueueState{}, err
	}
	b.mu.Lock()
	b.queue.Shuffle = enabled
	b.mu.Unlock()
	return b.queueChanged(), nil
}

// playerCall runs a player transition and emits the resulting state.
func (b *FakeBackend) playerCall(ctx context.Context, method string, change func() error) (rpc.PlayerState, error) {
	if err := b.enter(ctx, method); err != nil {
		return rpc.PlayerState{}, err
	}
	b.mu.Lock()
	if err := change(); err != nil {
		b.mu.Unlock()
		return rpc.PlayerState{}, err
	}
	queueMoved := b.player.CurrentIndex != b.queue.CurrentIndex
	var q rpc.QueueState
	if queueMoved {
		b.syncLocked()
		q = b.cloneQueueLocked()
	} else {
		b.player.UpdatedAt = b.stampLocked()
	}
	p := b.player
	b.mu.Unlock()
	if queueMoved {
		b.emit("queue:state", q)
	}
	b.emit("player:state", p)
	return p, nil
}

func (b *FakeBackend) requireTrackLocked() error {
	if b.queue.CurrentIndex < 0 {
		return fmt.Errorf("queue is empty")
	}
	return nil
}

func (b *FakeBackend) GetPlayerState(ctx context.Context) (rpc.PlayerState, error) {
	if err := b.enter(ctx, "GetPlayerState"); err != nil {
		return rpc.PlayerState{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.player, nil
}

func (b *FakeBackend) Play(ctx context.Context) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "Play", func() error {
		if err := b.requireTrackLocked(); err != nil {
			return err
		}
		b.player.Status = rpc.PlayerPlaying
		return nil
	})
}

func (b *FakeBackend) Pause(ctx context.Context) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "Pause", func() error {
		if b.player.Status == rpc.PlayerPlaying {
			b.player.Status = rpc.PlayerPaused
		}
		return nil
	})
}

func (b *FakeBackend) TogglePlayback(ctx context.Context) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "TogglePlayback", func() error {
		if err := b.requireTrackLocked(); err != nil {
			return err
		}
		if b.player.Status == rpc.PlayerPlaying {
			b.player.Status = rpc.PlayerPaused
		} else {
			b.player.Status = rpc.PlayerPlaying
		}
		return nil
	})
}

func (b *FakeBackend) Stop(ctx context.Context) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "Stop", func() error {
		b.player.Status = rpc.PlayerIdle
		b.player.PositionMS = 0
		return nil
	})
}

func (b *FakeBackend) Next(ctx context.Context) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "Next", func() error {
		if err := b.requireTrackLocked(); err != nil {
			return err
		}
		next := b.queue.CurrentIndex + 1
		if next >= len(b.queue.Entries) {
			if b.queue.RepeatMode != rpc.RepeatAll {
				return fmt.Errorf("end of queue")
			}
			next = 0
		}
		b.queue.CurrentIndex = next
		b.player.PositionMS = 0
		return nil
	})
}

func (b *FakeBackend) Previous(ctx context.Context) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "Previous", func() error {
		if err := b.requireTrackLocked(); err != nil {
			return err
		}
		if b.queue.CurrentIndex > 0 {
			b.queue.CurrentIndex--
		}
		b.player.PositionMS = 0
		return nil
	})
}

func (b *FakeBackend) Seek(ctx context.Context, positionMS int) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "Seek", func() error {
		if err := b.requireTrackLocked(); err != nil {
			return err
		}
		b.player.PositionMS = positionMS
		return nil
	})
}

func (b *FakeBackend) SetVolume(ctx context.Context, volume int) (rpc.PlayerState, error) {
	return b.playerCall(ctx, "SetVolume", func() error {
		b.player.Volume = volume
		return nil
	})
}

func (b *FakeBackend) GetThemeDefaultOptions(ctx context.Context) (rpc.ExtractOptions, error) {
	if err := b.enter(ctx, "GetThemeDefaultOptions"); err != nil {
		return rpc.ExtractOptions{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.options, nil
}

func (b *FakeBackend) GenerateThemePalette(ctx context.Context, coverPath string, _ rpc.ExtractOptions) (rpc.ThemePalette, error) {
	if err := b.enter(ctx, "GenerateThemePalette"); err != nil {
		return rpc.ThemePalette{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.palettes[coverPath]; ok {
		return p, nil
	}
	return SyntheticPalette(coverPath), nil
}

// SyntheticPalette derives a stable single-color palette from coverPath.
func SyntheticPalette(coverPath string) rpc.ThemePalette {
	sum := crc32.ChecksumIEEE([]byte(coverPath))
	c := rpc.PaletteColor{
		Hex:        fmt.Sprintf("#%06x", sum&0xffffff),
		R:          int(sum >> 16 & 0xff),
		G:          int(sum >> 8 & 0xff),
		B:          int(sum & 0xff),
		Population: 100,
	}
	return rpc.ThemePalette{Primary: &c, Gradient: []rpc.PaletteColor{c}}
}

func (b *FakeBackend) GetOverview(ctx context.Context, limit int) (rpc.Overview, error) {
	if err := b.enter(ctx, "GetOverview"); err != nil {
		return rpc.Overview{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.overview
	if limit > 0 && len(o.TopTracks) > limit {
		o.TopTracks = o.TopTracks[:limit]
	}
	return o, nil
}

func (b *FakeBackend) GetDashboard(ctx context.Context, rangeKey string, limit int) (rpc.Dashboard, error) {
	if err := b.enter(ctx, "GetDashboard"); err != nil {
		return rpc.Dashboard{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.dashboard
	d.Range = rangeKey
	d.GeneratedAt = b.clock.Now().UTC().Format(time.RFC3339)
	if limit > 0 && len(d.TopTracks) > limit {
		d.TopTracks = d.TopTracks[:limit]
	}
	return d, nil
}

func (b *FakeBackend) GetInitialState(ctx context.Context, albumsLimit, albumsOffset int) (rpc.StartupSnapshot, error) {
	if err := b.enter(ctx, "GetInitialState"); err != nil {
		return rpc.StartupSnapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return rpc.StartupSnapshot{
		QueueState:          b.cloneQueueLocked(),
		PlayerState:         b.player,
		ScanStatus:          b.status,
		AlbumsPage:          b.albumsPageLocked(rpc.ListAlbumsParams{Limit: albumsLimit, Offset: albumsOffset}),
		ThemeModePreference: b.themeMode,
	}, nil
}
