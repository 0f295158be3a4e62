package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/roach88/benrt/internal/app"
	"github.com/roach88/benrt/internal/config"
	"github.com/roach88/benrt/internal/events"
	"github.com/roach88/benrt/internal/prefs"
	"github.com/roach88/benrt/internal/testutil"
)

// session is one runtime under test: a fake backend looped back into an
// event hub, an in-memory preference database, and a fake clock. Frames and
// idle callbacks run synchronously so each step can settle deterministically.
type session struct {
	clock   *testutil.FakeClock
	backend *testutil.FakeBackend
	hub     *events.Hub
	loop    *events.Loopback
	prefs   *prefs.Store
	host    *hostAppearance
	reg     *prometheus.Registry
	app     *app.App
}

type hostAppearance struct{ dark atomic.Bool }

func (h *hostAppearance) PrefersDark() bool { return h.dark.Load() }

type immediateFrames struct{}

func (immediateFrames) RequestFrame(fn func()) func() {
	fn()
	return func() {}
}

type immediateIdle struct{}

func (immediateIdle) RequestIdle(fn func()) func() {
	fn()
	return func() {}
}

func newSession(sc *Scenario, logger *slog.Logger) (*session, error) {
	cfg, err := scenarioConfig(sc)
	if err != nil {
		return nil, err
	}
	decoder, err := events.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}

	clk := testutil.NewFakeClock(testutil.Epoch)
	s := &session{
		clock:   clk,
		backend: testutil.NewFakeBackend(clk),
		hub:     events.NewHub(),
		host:    &hostAppearance{},
		reg:     prometheus.NewRegistry(),
	}
	s.host.dark.Store(sc.Host == "dark")
	s.loop = events.NewLoopback(s.hub, decoder, clk.Now, logger)
	s.backend.SetEmitter(s.loop)

	s.prefs, err = prefs.Open(":memory:", prefs.WithClock(clk))
	if err != nil {
		return nil, err
	}

	href := sc.InitialHref
	if href == "" {
		href = "/"
	}
	s.app, err = app.New(cfg, app.Deps{
		Backend: s.backend,
		Events:  s.hub,
		Prefs:   s.prefs,
		Host:    s.host,
		Frames:  immediateFrames{},
		Idle:    immediateIdle{},
	},
		app.WithClock(clk),
		app.WithLogger(logger),
		app.WithRegisterer(s.reg),
		app.WithInitialHref(href))
	if err != nil {
		s.prefs.Close()
		return nil, err
	}
	return s, nil
}

func scenarioConfig(sc *Scenario) (config.Config, error) {
	if sc.Config.Kind == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(&sc.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode scenario config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return config.Config{}, fmt.Errorf("scenario config: %w", err)
	}
	return cfg, nil
}

func (s *session) settle(ctx context.Context) error {
	if err := s.app.Settle(ctx); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	return nil
}

func (s *session) close() {
	s.app.Close()
	s.prefs.Close()
}

// finalState is the projection of the runtime that scenarios assert on.
// Session identifiers and timestamps are left out so it is deterministic.
type finalState struct {
	History  historyState   `json:"history"`
	Scan     scanState      `json:"scan"`
	Playback playbackState  `json:"playback"`
	Theme    themeState     `json:"theme"`
	Cache    cacheState     `json:"cache"`
	Events   eventsState    `json:"events"`
	Calls    map[string]int `json:"calls"`
}

type historyState struct {
	Index      int      `json:"index"`
	Entries    []string `json:"entries"`
	CanBack    bool     `json:"can_back"`
	CanForward bool     `json:"can_forward"`
}

type scanState struct {
	Running     bool     `json:"running"`
	Roots       []string `json:"roots"`
	LastStatus  string   `json:"last_status"`
	LastIndexed int      `json:"last_indexed"`
	Error       string   `json:"error"`
}

type playbackState struct {
	Queue   []int64 `json:"queue"`
	Index   int     `json:"index"`
	Track   string  `json:"track"`
	Status  string  `json:"status"`
	Volume  int     `json:"volume"`
	Repeat  string  `json:"repeat"`
	Shuffle bool    `json:"shuffle"`
	Error   string  `json:"error"`
}

type themeState struct {
	Mode     string `json:"mode"`
	Resolved string `json:"resolved"`
	Cover    string `json:"cover"`
	Palette  bool   `json:"palette"`
	Error    string `json:"error"`
}

type cacheState struct {
	Entries int `json:"entries"`
}

type eventsState struct {
	Dropped int64 `json:"dropped"`
}

func (s *session) snapshot() finalState {
	a := s.app

	h := a.History.State()
	hs := historyState{
		Index:      h.Index,
		Entries:    make([]string, 0, len(h.Entries)),
		CanBack:    a.History.CanGoBack(),
		CanForward: a.History.CanGoForward(),
	}
	for _, e := range h.Entries {
		hs.Entries = append(hs.Entries, e.Href())
	}

	sc := a.Scan.Snapshot()
	ss := scanState{
		Running:     sc.Status.Running,
		Roots:       make([]string, 0, len(sc.Roots)),
		LastIndexed: sc.Status.LastIndexed,
		Error:       sc.ErrorMessage,
	}
	for _, r := range sc.Roots {
		ss.Roots = append(ss.Roots, r.Path)
	}
	if sc.LastProgress != nil {
		ss.LastStatus = sc.LastProgress.Status
	}

	pb := a.Playback.Snapshot()
	ps := playbackState{
		Queue:   make([]int64, 0, len(pb.Queue.Entries)),
		Index:   pb.Queue.CurrentIndex,
		Status:  pb.Player.Status,
		Volume:  pb.Player.Volume,
		Repeat:  pb.Queue.RepeatMode,
		Shuffle: pb.Queue.Shuffle,
		Error:   pb.ErrorMessage,
	}
	for _, t := range pb.Queue.Entries {
		ps.Queue = append(ps.Queue, t.ID)
	}
	if t := pb.Queue.CurrentTrack; t != nil {
		ps.Track = t.Title
	}

	th := a.Theme.Snapshot()
	ts := themeState{
		Mode:     th.Mode,
		Resolved: th.Resolved,
		Cover:    th.CoverPath,
		Palette:  th.Palette != nil,
		Error:    th.ErrorMessage,
	}

	calls := make(map[string]int)
	for _, name := range s.backend.Calls() {
		calls[name]++
	}

	return finalState{
		History:  hs,
		Scan:     ss,
		Playback: ps,
		Theme:    ts,
		Cache:    cacheState{Entries: a.Cache.Len()},
		Events:   eventsState{Dropped: s.loop.Dropped()},
		Calls:    calls,
	}
}

// stateMap converts the snapshot to plain JSON values so assertions compare
// numbers and nested values uniformly.
func stateMap(st finalState) (map[string]any, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// metrics sums each gathered family's samples. Histograms contribute their
// observation count.
func (s *session) metrics() (map[string]float64, error) {
	families, err := s.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = sum
	}
	return out, nil
}
