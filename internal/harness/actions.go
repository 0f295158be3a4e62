package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/benrt/internal/gesture"
	"github.com/roach88/benrt/internal/querykey"
	"github.com/roach88/benrt/internal/rpc"
)

// errRejected marks a step the runtime declined without failing, such as a
// navigation at a history boundary or a gesture inside the cooldown.
var errRejected = errors.New("rejected")

// argsError is a malformed step. It aborts the run instead of being traced.
type argsError struct{ err error }

func (e *argsError) Error() string { return "args: " + e.err.Error() }
func (e *argsError) Unwrap() error { return e.err }

type actionFunc func(ctx context.Context, s *session, args map[string]any) (any, error)

// decodeArgs re-encodes the generic args and decodes them strictly into v.
func decodeArgs(args map[string]any, v any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := yaml.Marshal(args)
	if err != nil {
		return &argsError{err}
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return &argsError{err}
	}
	return nil
}

// bind adapts a typed action body to actionFunc.
func bind[A any](fn func(ctx context.Context, s *session, a A) (any, error)) actionFunc {
	return func(ctx context.Context, s *session, raw map[string]any) (any, error) {
		var a A
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return fn(ctx, s, a)
	}
}

// call adapts an argument-less store call.
func call(fn func(ctx context.Context, s *session) error) actionFunc {
	return func(ctx context.Context, s *session, raw map[string]any) (any, error) {
		if len(raw) > 0 {
			return nil, &argsError{errors.New("action takes no args")}
		}
		return nil, fn(ctx, s)
	}
}

// navigation reports the current href, marking a declined move as rejected.
func navigation(s *session, moved bool) (any, error) {
	href := s.app.History.Current().Href()
	if !moved {
		return href, errRejected
	}
	return href, nil
}

type hrefArgs struct {
	Href string `yaml:"href"`
}

type deltaArgs struct {
	Delta int `yaml:"delta"`
}

type scrollArgs struct {
	Top float64 `yaml:"top"`
}

type wheelArgs struct {
	DX float64 `yaml:"dx"`
	DY float64 `yaml:"dy"`
}

type touchArgs struct {
	DX float64 `yaml:"dx"`
	DY float64 `yaml:"dy"`
	MS int     `yaml:"ms"`
}

type keyArgs struct {
	Key string `yaml:"key"`
	Alt bool   `yaml:"alt"`
}

type mouseArgs struct {
	Button int `yaml:"button"`
}

type directionArgs struct {
	Direction string `yaml:"direction"`
}

type msArgs struct {
	MS int `yaml:"ms"`
}

type appearanceArgs struct {
	Dark bool `yaml:"dark"`
}

type statusArgs struct {
	Status string `yaml:"status"`
}

type failArgs struct {
	Method  string `yaml:"method"`
	Message string `yaml:"message"`
}

type trackArgs struct {
	ID     int64  `yaml:"id"`
	Title  string `yaml:"title"`
	Artist string `yaml:"artist"`
	Album  string `yaml:"album"`
	Cover  string `yaml:"cover"`
}

type emitArgs struct {
	Topic   string `yaml:"topic"`
	Payload any    `yaml:"payload"`
}

type queueArgs struct {
	Tracks []int64 `yaml:"tracks"`
	Start  int     `yaml:"start"`
}

type modeArgs struct {
	Mode string `yaml:"mode"`
}

type pathArgs struct {
	Path string `yaml:"path"`
}

type rootArgs struct {
	ID      int64 `yaml:"id"`
	Enabled bool  `yaml:"enabled"`
}

type indexArgs struct {
	Index int `yaml:"index"`
}

type enabledArgs struct {
	Enabled bool `yaml:"enabled"`
}

type levelArgs struct {
	Level int `yaml:"level"`
}

type listArgs struct {
	Search string `yaml:"search"`
	Artist string `yaml:"artist"`
	Album  string `yaml:"album"`
	Limit  int    `yaml:"limit"`
	Offset int    `yaml:"offset"`
}

type detailArgs struct {
	Name   string `yaml:"name"`
	Title  string `yaml:"title"`
	Artist string `yaml:"artist"`
	Limit  int    `yaml:"limit"`
	Offset int    `yaml:"offset"`
}

type statsArgs struct {
	Range string `yaml:"range"`
	Limit int    `yaml:"limit"`
}

type prefixArgs struct {
	Prefix []any `yaml:"prefix"`
}

// actions maps every step name to its implementation.
var actions = map[string]actionFunc{
	"history.push": bind(func(_ context.Context, s *session, a hrefArgs) (any, error) {
		s.app.History.Push(a.Href)
		return navigation(s, true)
	}),
	"history.replace": bind(func(_ context.Context, s *session, a hrefArgs) (any, error) {
		s.app.History.Replace(a.Href)
		return navigation(s, true)
	}),
	"history.back": bind(func(_ context.Context, s *session, _ struct{}) (any, error) {
		return navigation(s, s.app.History.Back())
	}),
	"history.forward": bind(func(_ context.Context, s *session, _ struct{}) (any, error) {
		return navigation(s, s.app.History.Forward())
	}),
	"history.go": bind(func(_ context.Context, s *session, a deltaArgs) (any, error) {
		return navigation(s, s.app.History.Go(a.Delta))
	}),
	"history.scroll": bind(func(_ context.Context, s *session, a scrollArgs) (any, error) {
		s.app.History.SetCurrentScroll(a.Top)
		return s.app.History.Current().ScrollTop, nil
	}),

	"gesture.wheel": bind(func(_ context.Context, s *session, a wheelArgs) (any, error) {
		return navigation(s, s.app.Gestures.Wheel(a.DX, a.DY))
	}),
	"gesture.touch": bind(func(_ context.Context, s *session, a touchArgs) (any, error) {
		s.app.Gestures.PointerDown(1, 0, 0)
		s.clock.Advance(time.Duration(a.MS) * time.Millisecond)
		return navigation(s, s.app.Gestures.PointerUp(1, a.DX, a.DY))
	}),
	"gesture.key": bind(func(_ context.Context, s *session, a keyArgs) (any, error) {
		return navigation(s, s.app.Gestures.HandleKey(a.Key, a.Alt))
	}),
	"gesture.mouse": bind(func(_ context.Context, s *session, a mouseArgs) (any, error) {
		return navigation(s, s.app.Gestures.HandleMouseButton(a.Button))
	}),
	"gesture.trigger": bind(func(_ context.Context, s *session, a directionArgs) (any, error) {
		var dir gesture.Direction
		switch a.Direction {
		case "back":
			dir = gesture.Back
		case "forward":
			dir = gesture.Forward
		default:
			return nil, &argsError{fmt.Errorf("direction must be back or forward, got %q", a.Direction)}
		}
		return navigation(s, s.app.Gestures.TriggerNavigation(dir))
	}),

	"clock.advance": bind(func(_ context.Context, s *session, a msArgs) (any, error) {
		s.clock.Advance(time.Duration(a.MS) * time.Millisecond)
		return nil, nil
	}),
	"host.appearance": bind(func(_ context.Context, s *session, a appearanceArgs) (any, error) {
		s.host.dark.Store(a.Dark)
		s.app.Theme.HostAppearanceChanged()
		return s.app.Theme.Snapshot().Resolved, nil
	}),

	"backend.finish-scan": bind(func(_ context.Context, s *session, a statusArgs) (any, error) {
		status := a.Status
		if status == "" {
			status = rpc.ScanCompleted
		}
		s.backend.FinishScan(status)
		return nil, nil
	}),
	"backend.fail-next": bind(func(_ context.Context, s *session, a failArgs) (any, error) {
		if a.Method == "" {
			return nil, &argsError{errors.New("method is required")}
		}
		msg := a.Message
		if msg == "" {
			msg = "backend unavailable"
		}
		s.backend.FailNext(a.Method, errors.New(msg))
		return nil, nil
	}),
	"backend.add-track": bind(func(_ context.Context, s *session, a trackArgs) (any, error) {
		t := rpc.TrackSummary{
			ID:          a.ID,
			Title:       a.Title,
			Artist:      a.Artist,
			Album:       a.Album,
			AlbumArtist: a.Artist,
			Path:        fmt.Sprintf("/music/%s/%s/%s.flac", a.Artist, a.Album, a.Title),
		}
		if a.Cover != "" {
			cover := a.Cover
			t.CoverPath = &cover
		}
		s.backend.AddTrack(t)
		return nil, nil
	}),
	"backend.emit": bind(func(_ context.Context, s *session, a emitArgs) (any, error) {
		s.loop.Emit(a.Topic, a.Payload)
		return nil, nil
	}),
	"backend.set-queue": bind(func(ctx context.Context, s *session, a queueArgs) (any, error) {
		_, err := s.backend.SetQueue(ctx, a.Tracks, a.Start)
		return nil, err
	}),
	"backend.add-root": bind(func(ctx context.Context, s *session, a pathArgs) (any, error) {
		_, err := s.backend.AddWatchedRoot(ctx, a.Path)
		return nil, err
	}),
	"backend.theme-mode": bind(func(_ context.Context, s *session, a modeArgs) (any, error) {
		s.backend.SetThemeMode(a.Mode)
		return nil, nil
	}),
	"prefs.theme-mode": bind(func(ctx context.Context, s *session, a modeArgs) (any, error) {
		return nil, s.prefs.SetThemeMode(ctx, a.Mode)
	}),

	"scan.add-root": bind(func(ctx context.Context, s *session, a pathArgs) (any, error) {
		return nil, s.app.Scan.AddRoot(ctx, a.Path)
	}),
	"scan.remove-root": bind(func(ctx context.Context, s *session, a rootArgs) (any, error) {
		return nil, s.app.Scan.RemoveRoot(ctx, a.ID)
	}),
	"scan.set-root-enabled": bind(func(ctx context.Context, s *session, a rootArgs) (any, error) {
		return nil, s.app.Scan.SetRootEnabled(ctx, a.ID, a.Enabled)
	}),
	"scan.trigger": bind(func(ctx context.Context, s *session, a modeArgs) (any, error) {
		switch a.Mode {
		case "":
			return nil, s.app.Scan.TriggerScan(ctx)
		case "full":
			return nil, s.app.Scan.TriggerFullScan(ctx)
		case "incremental":
			return nil, s.app.Scan.TriggerIncrementalScan(ctx)
		}
		return nil, &argsError{fmt.Errorf("mode must be full or incremental, got %q", a.Mode)}
	}),
	"scan.refresh": call(func(ctx context.Context, s *session) error {
		return s.app.Scan.Refresh(ctx)
	}),

	"playback.set-queue": bind(func(ctx context.Context, s *session, a queueArgs) (any, error) {
		return nil, s.app.Playback.SetQueue(ctx, a.Tracks, a.Start)
	}),
	"playback.append": bind(func(ctx context.Context, s *session, a queueArgs) (any, error) {
		return nil, s.app.Playback.AppendTracks(ctx, a.Tracks)
	}),
	"playback.remove": bind(func(ctx context.Context, s *session, a indexArgs) (any, error) {
		return nil, s.app.Playback.RemoveTrack(ctx, a.Index)
	}),
	"playback.select": bind(func(ctx context.Context, s *session, a indexArgs) (any, error) {
		return nil, s.app.Playback.SetCurrentIndex(ctx, a.Index)
	}),
	"playback.clear": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.ClearQueue(ctx)
	}),
	"playback.repeat": bind(func(ctx context.Context, s *session, a modeArgs) (any, error) {
		return nil, s.app.Playback.SetRepeatMode(ctx, a.Mode)
	}),
	"playback.cycle-repeat": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.CycleRepeatMode(ctx)
	}),
	"playback.shuffle": bind(func(ctx context.Context, s *session, a enabledArgs) (any, error) {
		return nil, s.app.Playback.SetShuffle(ctx, a.Enabled)
	}),
	"playback.toggle-shuffle": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.ToggleShuffle(ctx)
	}),
	"playback.play": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.Play(ctx)
	}),
	"playback.pause": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.Pause(ctx)
	}),
	"playback.toggle": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.TogglePlayback(ctx)
	}),
	"playback.stop": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.Stop(ctx)
	}),
	"playback.next": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.Next(ctx)
	}),
	"playback.previous": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.Previous(ctx)
	}),
	"playback.seek": bind(func(ctx context.Context, s *session, a msArgs) (any, error) {
		return nil, s.app.Playback.Seek(ctx, a.MS)
	}),
	"playback.volume": bind(func(ctx context.Context, s *session, a levelArgs) (any, error) {
		if err := s.app.Playback.SetVolume(ctx, a.Level); err != nil {
			return nil, err
		}
		return s.app.Playback.Snapshot().Player.Volume, nil
	}),
	"playback.refresh": call(func(ctx context.Context, s *session) error {
		return s.app.Playback.Refresh(ctx)
	}),

	"theme.set-mode": bind(func(ctx context.Context, s *session, a modeArgs) (any, error) {
		if err := s.app.Theme.SetMode(ctx, a.Mode); err != nil {
			return nil, err
		}
		return s.app.Theme.Snapshot().Resolved, nil
	}),

	"library.artists": bind(func(ctx context.Context, s *session, a listArgs) (any, error) {
		page, err := s.app.Library.Artists(ctx, rpc.ListArtistsParams{Search: a.Search, Limit: a.Limit, Offset: a.Offset})
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(page.Items))
		for _, it := range page.Items {
			names = append(names, it.Name)
		}
		return map[string]any{"total": page.Page.Total, "names": names}, nil
	}),
	"library.albums": bind(func(ctx context.Context, s *session, a listArgs) (any, error) {
		page, err := s.app.Library.Albums(ctx, rpc.ListAlbumsParams{Search: a.Search, Artist: a.Artist, Limit: a.Limit, Offset: a.Offset})
		if err != nil {
			return nil, err
		}
		titles := make([]string, 0, len(page.Items))
		for _, it := range page.Items {
			titles = append(titles, it.Title)
		}
		return map[string]any{"total": page.Page.Total, "titles": titles}, nil
	}),
	"library.tracks": bind(func(ctx context.Context, s *session, a listArgs) (any, error) {
		page, err := s.app.Library.Tracks(ctx, rpc.ListTracksParams{Search: a.Search, Artist: a.Artist, Album: a.Album, Limit: a.Limit, Offset: a.Offset})
		if err != nil {
			return nil, err
		}
		return map[string]any{"total": page.Page.Total, "titles": trackTitles(page.Items)}, nil
	}),
	"library.artist": bind(func(ctx context.Context, s *session, a detailArgs) (any, error) {
		d, err := s.app.Library.ArtistDetail(ctx, rpc.ArtistDetailParams{Name: a.Name, Limit: a.Limit, Offset: a.Offset})
		if err != nil {
			return nil, err
		}
		albums := make([]string, 0, len(d.Albums))
		for _, al := range d.Albums {
			albums = append(albums, al.Title)
		}
		return map[string]any{"name": d.Name, "tracks": d.TrackCount, "albums": albums}, nil
	}),
	"library.album": bind(func(ctx context.Context, s *session, a detailArgs) (any, error) {
		d, err := s.app.Library.AlbumDetail(ctx, rpc.AlbumDetailParams{Title: a.Title, AlbumArtist: a.Artist, Limit: a.Limit, Offset: a.Offset})
		if err != nil {
			return nil, err
		}
		return map[string]any{"title": d.Title, "tracks": trackTitles(d.Tracks)}, nil
	}),
	"library.top-tracks": bind(func(ctx context.Context, s *session, a detailArgs) (any, error) {
		top, err := s.app.Library.ArtistTopTracks(ctx, a.Artist, a.Limit)
		if err != nil {
			return nil, err
		}
		titles := make([]string, 0, len(top))
		for _, t := range top {
			titles = append(titles, t.Title)
		}
		return titles, nil
	}),
	"library.overview": bind(func(ctx context.Context, s *session, a statsArgs) (any, error) {
		o, err := s.app.Library.Overview(ctx, a.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"played_ms": o.TotalPlayedMS, "tracks": o.TracksPlayed}, nil
	}),
	"library.dashboard": bind(func(ctx context.Context, s *session, a statsArgs) (any, error) {
		d, err := s.app.Library.Dashboard(ctx, a.Range, a.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"range": d.Range, "plays": d.Summary.TotalPlays}, nil
	}),

	"cache.invalidate": bind(func(_ context.Context, s *session, a prefixArgs) (any, error) {
		return s.app.Cache.Invalidate(querykey.New(a.Prefix...)), nil
	}),
}

func trackTitles(tracks []rpc.TrackSummary) []string {
	titles := make([]string, 0, len(tracks))
	for _, t := range tracks {
		titles = append(titles, t.Title)
	}
	return titles
}
