package pushclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
	"github.com/MarcoPoloResearchLab/yapp/internal/wire"
)

type streamServer struct {
	server      *httptest.Server
	connections atomic.Int32
	tokens      chan string
}

// newStreamServer serves frames to each connection and then hangs up, so
// every client run sees repeated reconnects.
func newStreamServer(t *testing.T, frames ...[]byte) *streamServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	stream := &streamServer{tokens: make(chan string, 16)}
	stream.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		stream.connections.Add(1)
		select {
		case stream.tokens <- r.URL.Query().Get(accessTokenParam):
		default:
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	t.Cleanup(stream.server.Close)
	return stream
}

func (s *streamServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/stream"
}

func mustFrame(t *testing.T, eventType feed.EventType, payload any) []byte {
	t.Helper()
	frame, err := wire.EncodeEvent(eventType, payload)
	require.NoError(t, err)
	return frame
}

func TestClientDeliversEventsAndReconnects(t *testing.T) {
	stream := newStreamServer(t,
		mustFrame(t, feed.EventPostCreated, wire.Post{ID: "p1", AuthorEmail: "a@x.com"}),
		[]byte(`{"type":"bogus"}`),
		mustFrame(t, feed.EventPostDeleted, wire.PostDeleted{ID: "p1"}),
	)

	var mu sync.Mutex
	var events []feed.Event
	var connects atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := New(Config{
		URL:         stream.URL(),
		Credentials: func() string { return "token-a" },
		Handler: func(event feed.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
		},
		OnConnect: func() {
			if connects.Add(1) >= 2 {
				cancel()
			}
		},
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  20 * time.Millisecond,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop after cancellation")
	}

	assert.Equal(t, "token-a", <-stream.tokens)
	assert.GreaterOrEqual(t, stream.connections.Load(), int32(2))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, feed.EventPostCreated, events[0].Type)
	assert.Equal(t, "a@x.com", events[0].Post.AuthorIdentity)
	assert.Equal(t, feed.EventPostDeleted, events[1].Type)
	assert.Equal(t, "p1", events[1].PostID)
	assert.GreaterOrEqual(t, client.Stats().EventsMalformed, int64(1))
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	streamURL := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	client, err := New(Config{
		URL:         streamURL,
		Handler:     func(feed.Event) {},
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	err = client.Run(context.Background())
	require.ErrorIs(t, err, ErrMaxAttempts)
	assert.False(t, client.Connected())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Handler: func(feed.Event) {}})
	require.Error(t, err)
	_, err = New(Config{URL: "ws://localhost/stream"})
	require.Error(t, err)
}
