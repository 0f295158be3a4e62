// Package playback is the runtime store for the play queue and the player.
//
// Queue and player states are stamped by the backend (UpdatedAt). A state,
// whether from a push event or a call's result, replaces the held one only
// if it is not older, so a late response cannot roll the store back.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/benrt/internal/observable"
	"github.com/roach88/benrt/internal/rpc"
	"github.com/roach88/benrt/internal/runtime"
)

// Volume bounds.
const (
	MinVolume = 0
	MaxVolume = 100
)

// ErrInvalidRepeatMode is surfaced for repeat modes outside off|all|one.
var ErrInvalidRepeatMode = errors.New("invalid repeat mode")

// State is the playback domain's state.
type State struct {
	runtime.Meta

	Queue  rpc.QueueState  `json:"queue"`
	Player rpc.PlayerState `json:"player"`
}

// Backend is the part of rpc.Backend the store calls.
type Backend interface {
	rpc.QueueService
	rpc.PlayerService
}

// Store is safe for concurrent use.
type Store struct {
	rt      *runtime.Store[State]
	backend Backend
}

// New creates an empty store.
func New(backend Backend, logger *slog.Logger) *Store {
	initial := State{
		Queue:  rpc.QueueState{CurrentIndex: -1, RepeatMode: rpc.RepeatOff},
		Player: rpc.PlayerState{Status: rpc.PlayerIdle, CurrentIndex: -1},
	}
	return &Store{
		rt:      runtime.NewStore("playback", initial, func(s *State) *runtime.Meta { return &s.Meta }, logger),
		backend: backend,
	}
}

// State exposes the observable state.
func (s *Store) State() *observable.Store[State] { return s.rt.State() }

// Snapshot returns the current state.
func (s *Store) Snapshot() State { return s.rt.Get() }

// HydrateFromStartup seeds queue and player from the startup snapshot. Only
// the first call has any effect, and a push event already folded in wins
// over an older snapshot.
func (s *Store) HydrateFromStartup(q rpc.QueueState, p rpc.PlayerState) bool {
	return s.rt.Hydrate(func(st *State) {
		setQueue(q)(st)
		setPlayer(p)(st)
	})
}

// notOlder reports whether stamp next is at or after held. Unparseable
// stamps are accepted.
func notOlder(next, held string) bool {
	if held == "" || next == "" {
		return true
	}
	nt, err := time.Parse(time.RFC3339Nano, next)
	if err != nil {
		return true
	}
	ht, err := time.Parse(time.RFC3339Nano, held)
	if err != nil {
		return true
	}
	return !nt.Before(ht)
}

func setQueue(q rpc.QueueState) runtime.Patch[State] {
	return func(st *State) {
		if notOlder(q.UpdatedAt, st.Queue.UpdatedAt) {
			st.Queue = q
		}
	}
}

func setPlayer(p rpc.PlayerState) runtime.Patch[State] {
	return func(st *State) {
		if notOlder(p.UpdatedAt, st.Player.UpdatedAt) {
			st.Player = p
		}
	}
}

// ApplyQueueEvent folds a queue:state event into the state. It reports false
// when the event is older than the held queue.
func (s *Store) ApplyQueueEvent(q rpc.QueueState) bool {
	return s.rt.UpdateIf(func(st State) bool {
		return notOlder(q.UpdatedAt, st.Queue.UpdatedAt)
	}, func(st *State) { st.Queue = q })
}

// ApplyPlayerEvent folds a player:state event into the state. It reports
// false when the event is older than the held player state.
func (s *Store) ApplyPlayerEvent(p rpc.PlayerState) bool {
	return s.rt.UpdateIf(func(st State) bool {
		return notOlder(p.UpdatedAt, st.Player.UpdatedAt)
	}, func(st *State) { st.Player = p })
}

// Refresh re-reads queue and player together.
func (s *Store) Refresh(ctx context.Context) error {
	return s.rt.Refresh(ctx, "playback.refresh", func(ctx context.Context) (runtime.Patch[State], error) {
		var (
			q rpc.QueueState
			p rpc.PlayerState
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			q, err = s.backend.GetQueueState(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			p, err = s.backend.GetPlayerState(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return func(st *State) {
			setQueue(q)(st)
			setPlayer(p)(st)
		}, nil
	})
}

// RefreshQueue re-reads only the queue.
func (s *Store) RefreshQueue(ctx context.Context) error {
	return s.rt.Refresh(ctx, "playback.refresh-queue", s.readQueue)
}

// RefreshPlayer re-reads only the player.
func (s *Store) RefreshPlayer(ctx context.Context) error {
	return s.rt.Refresh(ctx, "playback.refresh-player", s.readPlayer)
}

func (s *Store) readQueue(ctx context.Context) (runtime.Patch[State], error) {
	q, err := s.backend.GetQueueState(ctx)
	if err != nil {
		return nil, err
	}
	return setQueue(q), nil
}

func (s *Store) readPlayer(ctx context.Context) (runtime.Patch[State], error) {
	p, err := s.backend.GetPlayerState(ctx)
	if err != nil {
		return nil, err
	}
	return setPlayer(p), nil
}

// queueCall runs a queue write, applies the returned queue and re-reads the
// player.
func (s *Store) queueCall(ctx context.Context, op string, call func(context.Context) (rpc.QueueState, error)) error {
	return s.rt.Mutate(ctx, op, func(ctx context.Context) (runtime.Patch[State], error) {
		q, err := call(ctx)
		if err != nil {
			return nil, err
		}
		return setQueue(q), nil
	}, s.readPlayer)
}

// playerCall runs a player write and applies the returned state. When
// queueMoves is set the queue is re-read afterwards.
func (s *Store) playerCall(ctx context.Context, op string, queueMoves bool, call func(context.Context) (rpc.PlayerState, error)) error {
	var reread runtime.Pull[State]
	if queueMoves {
		reread = s.readQueue
	}
	return s.rt.Mutate(ctx, op, func(ctx context.Context) (runtime.Patch[State], error) {
		p, err := call(ctx)
		if err != nil {
			return nil, err
		}
		return setPlayer(p), nil
	}, reread)
}

// SetQueue replaces the queue with trackIDs and starts at startIndex.
func (s *Store) SetQueue(ctx context.Context, trackIDs []int64, startIndex int) error {
	return s.queueCall(ctx, "playback.set-queue", func(ctx context.Context) (rpc.QueueState, error) {
		return s.backend.SetQueue(ctx, trackIDs, startIndex)
	})
}

// AppendTracks adds trackIDs to the end of the queue.
func (s *Store) AppendTracks(ctx context.Context, trackIDs []int64) error {
	return s.queueCall(ctx, "playback.append-tracks", func(ctx context.Context) (rpc.QueueState, error) {
		return s.backend.AppendTracks(ctx, trackIDs)
	})
}

// RemoveTrack removes the queue entry at index.
func (s *Store) RemoveTrack(ctx context.Context, index int) error {
	return s.queueCall(ctx, "playback.remove-track", func(ctx context.Context) (rpc.QueueState, error) {
		return s.backend.RemoveQueueIndex(ctx, index)
	})
}

// SetCurrentIndex jumps to the queue entry at index.
func (s *Store) SetCurrentIndex(ctx context.Context, index int) error {
	return s.queueCall(ctx, "playback.set-current-index", func(ctx context.Context) (rpc.QueueState, error) {
		return s.backend.SetQueueIndex(ctx, index)
	})
}

// ClearQueue empties the queue.
func (s *Store) ClearQueue(ctx context.Context) error {
	return s.queueCall(ctx, "playback.clear", s.backend.ClearQueue)
}

// SetRepeatMode sets off, all or one. Other modes are rejected without a
// call.
func (s *Store) SetRepeatMode(ctx context.Context, mode string) error {
	const op = "playback.set-repeat-mode"
	switch mode {
	case rpc.RepeatOff, rpc.RepeatAll, rpc.RepeatOne:
	default:
		return s.rt.Fail(op, fmt.Errorf("%w: %q", ErrInvalidRepeatMode, mode))
	}
	return s.queueCall(ctx, op, func(ctx context.Context) (rpc.QueueState, error) {
		return s.backend.SetRepeatMode(ctx, mode)
	})
}

// CycleRepeatMode advances off → all → one → off.
func (s *Store) CycleRepeatMode(ctx context.Context) error {
	next := rpc.RepeatAll
	switch s.Snapshot().Queue.RepeatMode {
	case rpc.RepeatAll:
		next = rpc.RepeatOne
	case rpc.RepeatOne:
		next = rpc.RepeatOff
	}
	return s.SetRepeatMode(ctx, next)
}

// SetShuffle turns shuffle on or off.
func (s *Store) SetShuffle(ctx context.Context, enabled bool) error {
	return s.queueCall(ctx, "playback.set-shuffle", func(ctx context.Context) (rpc.QueueState, error) {
		return s.backend.SetShuffle(ctx, enabled)
	})
}

// ToggleShuffle flips the held shuffle flag.
func (s *Store) ToggleShuffle(ctx context.Context) error {
	return s.SetShuffle(ctx, !s.Snapshot().Queue.Shuffle)
}

// Play resumes or starts playback and folds in the returned player state.
func (s *Store) Play(ctx context.Context) error {
	return s.playerCall(ctx, "playback.play", false, s.backend.Play)
}

// Pause pauses playback.
func (s *Store) Pause(ctx context.Context) error {
	return s.playerCall(ctx, "playback.pause", false, s.backend.Pause)
}

// TogglePlayback pauses when playing and plays otherwise.
func (s *Store) TogglePlayback(ctx context.Context) error {
	return s.playerCall(ctx, "playback.toggle", false, s.backend.TogglePlayback)
}

// Stop stops playback.
func (s *Store) Stop(ctx context.Context) error {
	return s.playerCall(ctx, "playback.stop", false, s.backend.Stop)
}

// Next skips to the next queue entry. The queue is re-read afterwards
// since the current index moved.
func (s *Store) Next(ctx context.Context) error {
	return s.playerCall(ctx, "playback.next", true, s.backend.Next)
}

// Previous goes back one queue entry and re-reads the queue.
func (s *Store) Previous(ctx context.Context) error {
	return s.playerCall(ctx, "playback.previous", true, s.backend.Previous)
}

// Seek moves to positionMS. Negative positions seek to 0.
func (s *Store) Seek(ctx context.Context, positionMS int) error {
	positionMS = max(positionMS, 0)
	return s.playerCall(ctx, "playback.seek", false, func(ctx context.Context) (rpc.PlayerState, error) {
		return s.backend.Seek(ctx, positionMS)
	})
}

// SetVolume sets the volume, clamped to [MinVolume, MaxVolume].
func (s *Store) SetVolume(ctx context.Context, volume int) error {
	volume = min(max(volume, MinVolume), MaxVolume)
	return s.playerCall(ctx, "playback.set-volume", false, func(ctx context.Context) (rpc.PlayerState, error) {
		return s.backend.SetVolume(ctx, volume)
	})
}
