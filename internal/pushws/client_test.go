package pushws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/benrt/internal/events"
)

var upgrader = websocket.Upgrader{}

// pushServer writes frames to every connection, then holds it open until
// the test ends or closeAfter is set.
func pushServer(t *testing.T, frames []string, closeAfter bool) *httptest.Server {
	t.Helper()
	stop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if closeAfter {
			return
		}
		<-stop
	}))
	t.Cleanup(func() {
		close(stop)
		srv.Close()
	})
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type collector struct {
	mu     sync.Mutex
	topics []events.Topic
}

func (c *collector) handle(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, e.Topic)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics)
}

func (c *collector) snapshot() []events.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Topic(nil), c.topics...)
}

const (
	progressFrame = `{"name":"scanner:progress","data":{"phase":"walk","message":"","percent":10,"status":"running","at":"t"}}`
	queueFrame    = `{"name":"queue:state","data":{"entries":[],"currentIndex":0,"total":0,"updatedAt":"t"}}`
	playerFrame   = `{"name":"player:state","data":{"status":"idle","positionMs":0,"volume":50,"updatedAt":"t"}}`
)

func start(t *testing.T, c *Client) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	t.Cleanup(cancelFn)
	return cancelFn, errc
}

func TestClient_DeliversInOrder(t *testing.T) {
	srv := pushServer(t, []string{progressFrame, queueFrame, playerFrame, progressFrame}, false)
	c := New(wsURL(srv), events.MustDecoder())

	var got collector
	for _, topic := range events.Topics() {
		c.Subscribe(topic, got.handle)
	}
	cancel, done := start(t, c)

	require.Eventually(t, func() bool { return got.len() == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []events.Topic{
		events.TopicScanProgress,
		events.TopicQueueState,
		events.TopicPlayerState,
		events.TopicScanProgress,
	}, got.snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_DropsBadFrames(t *testing.T) {
	srv := pushServer(t, []string{
		`not json`,
		`{"name":"library:changed","data":{}}`,
		`{"name":"player:state","data":{"status":"warp"}}`,
		queueFrame,
	}, false)
	c := New(wsURL(srv), events.MustDecoder())

	var got collector
	c.Subscribe(events.TopicQueueState, got.handle)
	c.Subscribe(events.TopicPlayerState, got.handle)
	start(t, c)

	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), c.Dropped())
}

func TestClient_Reconnects(t *testing.T) {
	srv := pushServer(t, []string{queueFrame}, true)
	c := New(wsURL(srv), events.MustDecoder(), WithSettings(Settings{
		ReconnectTimeout: 10 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}))

	var got collector
	c.Subscribe(events.TopicQueueState, got.handle)
	start(t, c)

	require.Eventually(t, func() bool { return c.Connects() >= 2 && got.len() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestClient_UnsubscribeStopsDelivery(t *testing.T) {
	c := New("ws://unused", events.MustDecoder())
	var got collector
	unsub := c.Subscribe(events.TopicQueueState, got.handle)

	c.dispatch([]byte(queueFrame))
	unsub()
	c.dispatch([]byte(queueFrame))

	assert.Equal(t, 1, got.len())
}
