package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/design-desk/backend/internal/service/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
	"github.com/zhouzirui/design-desk/backend/internal/service/turn"
)

type fakeSubmitter struct {
	fragments []string
	block     bool
	cancelled chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, req turn.Request) (*turn.Turn, error) {
	frags := fragment.Text(f.fragments...)
	if f.block {
		frags = func(yield func(string, error) bool) {
			if !yield("first\n", nil) {
				return
			}
			<-ctx.Done()
			close(f.cancelled)
			yield("", ctx.Err())
		}
	}
	return &turn.Turn{
		Thread:           chat.Thread{ID: req.ThreadID, Name: "Design chat"},
		UserMessage:      chat.Message{ID: "u1", Body: req.Body},
		AssistantMessage: chat.Message{ID: "a1"},
		Fragments:        frags,
	}, nil
}

func startServer(t *testing.T, sub *fakeSubmitter) (*httptest.Server, string) {
	t.Helper()
	store := chatservice.NewService()
	thread, err := store.CreateThread(context.Background(), chat.Thread{})
	require.NoError(t, err)

	r := chi.NewRouter()
	New(sub, store, []string{"*"}, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, thread.ID
}

func dial(t *testing.T, srv *httptest.Server, threadID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + threadID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketStreamsTurn(t *testing.T) {
	srv, threadID := startServer(t, &fakeSubmitter{fragments: []string{"Use flexbox.\n", "Done."}})
	conn := dial(t, srv, threadID)

	assert.Equal(t, "connected", readFrame(t, conn)["type"])
	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "message", Body: "How do I center a div?"}))

	start := readFrame(t, conn)
	assert.Equal(t, "start", start["type"])
	data := start["data"].(map[string]any)
	assert.Equal(t, "a1", data["assistant_message_id"])

	var deltas []string
	for {
		frame := readFrame(t, conn)
		if frame["type"] == "end" {
			break
		}
		require.Equal(t, "delta", frame["type"])
		deltas = append(deltas, frame["data"].(map[string]any)["content"].(string))
	}
	assert.Equal(t, []string{"Use flexbox.\n", "Done."}, deltas)
}

func TestWebSocketRejectsBadFrames(t *testing.T) {
	srv, threadID := startServer(t, &fakeSubmitter{})
	conn := dial(t, srv, threadID)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "audio"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "message", Body: "  "}))
	frame = readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "message is required", frame["data"].(map[string]any)["error"])
}

func TestWebSocketUnknownThread(t *testing.T) {
	srv, _ := startServer(t, &fakeSubmitter{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketCloseCancelsTurn(t *testing.T) {
	sub := &fakeSubmitter{block: true, cancelled: make(chan struct{})}
	srv, threadID := startServer(t, sub)
	conn := dial(t, srv, threadID)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "message", Body: "review this"}))
	assert.Equal(t, "start", readFrame(t, conn)["type"])
	assert.Equal(t, "delta", readFrame(t, conn)["type"])

	require.NoError(t, conn.Close())

	select {
	case <-sub.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("turn was not cancelled after the socket closed")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "http://api.local/ws/t", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "http://api.local")
	assert.True(t, check(req), "same host is always allowed")
}
