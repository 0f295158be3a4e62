package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/benrt/internal/rpc"
)

func TestTopic_RoundTrip(t *testing.T) {
	for _, topic := range Topics() {
		got, ok := ParseTopic(topic.String())
		require.True(t, ok, topic.String())
		assert.Equal(t, topic, got)
	}
	_, ok := ParseTopic("library:changed")
	assert.False(t, ok)
	assert.Equal(t, "Topic(9)", Topic(9).String())
}

func TestDecode(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		topic string
		data  string
		check func(t *testing.T, e Event)
	}{
		{
			name:  "scan progress",
			topic: "scanner:progress",
			data:  `{"phase":"index","message":"indexing","percent":40,"status":"running","at":"2025-01-01T00:00:00Z"}`,
			check: func(t *testing.T, e Event) {
				p, ok := e.ScanProgress()
				require.True(t, ok)
				assert.Equal(t, 40, p.Percent)
				assert.Equal(t, rpc.ScanRunning, p.Status)
				_, ok = e.QueueState()
				assert.False(t, ok)
			},
		},
		{
			name:  "queue state with null entries and extra fields",
			topic: "queue:state",
			data:  `{"entries":null,"currentIndex":-1,"total":0,"updatedAt":"t1","revision":3}`,
			check: func(t *testing.T, e Event) {
				q, ok := e.QueueState()
				require.True(t, ok)
				assert.Equal(t, -1, q.CurrentIndex)
				assert.Nil(t, q.Entries)
			},
		},
		{
			name:  "queue state with tracks",
			topic: "queue:state",
			data:  `{"entries":[{"id":1,"title":"A","path":"/a.flac"}],"currentIndex":0,"currentTrack":{"id":1,"title":"A"},"repeatMode":"all","shuffle":true,"total":1,"updatedAt":"t1"}`,
			check: func(t *testing.T, e Event) {
				q, ok := e.QueueState()
				require.True(t, ok)
				require.Len(t, q.Entries, 1)
				assert.Equal(t, "/a.flac", q.Entries[0].Path)
				require.NotNil(t, q.CurrentTrack)
				assert.True(t, q.Shuffle)
			},
		},
		{
			name:  "player state",
			topic: "player:state",
			data:  `{"status":"playing","positionMs":1200,"volume":80,"durationMs":null,"updatedAt":"t2"}`,
			check: func(t *testing.T, e Event) {
				p, ok := e.PlayerState()
				require.True(t, ok)
				assert.Equal(t, rpc.PlayerPlaying, p.Status)
				assert.Nil(t, p.DurationMS)
				assert.Equal(t, at, e.ReceivedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := d.Decode(tt.topic, []byte(tt.data), at)
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	d := MustDecoder()

	tests := []struct {
		name  string
		topic string
		data  string
		want  error
	}{
		{"unknown topic", "library:changed", `{}`, ErrUnknownTopic},
		{"malformed json", "scanner:progress", `{"phase":`, ErrInvalidPayload},
		{"percent out of range", "scanner:progress", `{"phase":"p","message":"m","percent":120,"status":"running","at":"t"}`, ErrInvalidPayload},
		{"bad status", "scanner:progress", `{"phase":"p","message":"m","percent":1,"status":"paused","at":"t"}`, ErrInvalidPayload},
		{"missing field", "player:state", `{"status":"idle","positionMs":0,"updatedAt":"t"}`, ErrInvalidPayload},
		{"negative position", "player:state", `{"status":"idle","positionMs":-1,"volume":1,"updatedAt":"t"}`, ErrInvalidPayload},
		{"bad repeat mode", "queue:state", `{"entries":[],"currentIndex":0,"repeatMode":"twice","total":0,"updatedAt":"t"}`, ErrInvalidPayload},
		{"track without id", "queue:state", `{"entries":[{"title":"A"}],"currentIndex":0,"total":1,"updatedAt":"t"}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(tt.topic, []byte(tt.data), time.Time{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHub(t *testing.T) {
	h := NewHub()
	var got []string

	unsubA := h.Subscribe(TopicQueueState, func(Event) { got = append(got, "a") })
	h.Subscribe(TopicQueueState, func(Event) { got = append(got, "b") })
	h.Subscribe(TopicPlayerState, func(Event) { got = append(got, "player") })

	h.Publish(Event{Topic: TopicQueueState})
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 3, h.Total())

	unsubA()
	unsubA()
	got = nil
	h.Publish(Event{Topic: TopicQueueState})
	assert.Equal(t, []string{"b"}, got)
	assert.Equal(t, 1, h.Count(TopicQueueState))
	assert.Equal(t, 0, h.Count(TopicScanProgress))
}

func TestLoopback(t *testing.T) {
	hub := NewHub()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	lb := NewLoopback(hub, MustDecoder(), func() time.Time { return at }, nil)

	var got []Event
	hub.Subscribe(TopicPlayerState, func(e Event) { got = append(got, e) })

	lb.Emit("player:state", rpc.PlayerState{Status: rpc.PlayerPlaying, Volume: 50, CurrentIndex: 0})
	lb.Emit("player:state", map[string]any{"status": "rewinding", "positionMs": 0, "volume": 50})
	lb.Emit("library:changed", map[string]any{})

	require.Len(t, got, 1)
	p, ok := got[0].PlayerState()
	require.True(t, ok)
	assert.Equal(t, rpc.PlayerPlaying, p.Status)
	assert.Equal(t, at, got[0].ReceivedAt)
	assert.Equal(t, int64(2), lb.Dropped())
}
