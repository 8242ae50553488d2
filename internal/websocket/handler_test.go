package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"globalchat/pkg/types"
)

type staticResolver map[string]types.Identity

func (s staticResolver) Resolve(_ context.Context, token string) (types.Identity, error) {
	id, ok := s[token]
	if !ok {
		return types.Identity{}, types.ErrUnauthenticated
	}
	return id, nil
}

type recordingDispatcher struct {
	mu           sync.Mutex
	frames       []types.InboundFrame
	disconnected []string
	reject       bool
	got          chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{got: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) Submit(_ types.Identity, frame types.InboundFrame) error {
	if d.reject {
		return errors.New("queue full")
	}
	d.mu.Lock()
	d.frames = append(d.frames, frame)
	d.mu.Unlock()
	d.got <- struct{}{}
	return nil
}

func (d *recordingDispatcher) Disconnected(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = append(d.disconnected, userID)
}

func (d *recordingDispatcher) disconnectedUsers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.disconnected...)
}

type historyStub struct {
	frames []types.OutboundFrame
	err    error
}

func (h historyStub) History(context.Context, types.Identity, int) ([]types.OutboundFrame, error) {
	return h.frames, h.err
}

type keyLocalizer struct{}

func (keyLocalizer) T(locale, key string, _ map[string]any) string { return locale + ":" + key }

type handlerFixture struct {
	server     *httptest.Server
	registry   *Registry
	dispatcher *recordingDispatcher
}

func newHandlerFixture(t *testing.T, history HistoryProvider) *handlerFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log)
	dispatcher := newRecordingDispatcher()
	resolver := staticResolver{
		"tok-alice": {ID: "alice", Username: "Alice", PreferredLanguage: "en"},
		"tok-bob":   {ID: "bob", Username: "Bob", PreferredLanguage: "es", AutoTranslate: true},
	}
	handler := NewHandler(registry, resolver, dispatcher, history, keyLocalizer{}, HandlerConfig{
		PingInterval: time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		BufferSize:   16,
		HistoryLimit: 10,
	}, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{token}", handler.HandleWebSocket)
	mux.HandleFunc("GET /ws", handler.HandleWebSocket)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &handlerFixture{server: server, registry: registry, dispatcher: dispatcher}
}

func (f *handlerFixture) dial(t *testing.T, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandler_RejectsBadTokenWithCloseCode(t *testing.T) {
	f := newHandlerFixture(t, nil)
	conn := f.dial(t, "/ws/not-a-token", nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, CloseAuthFailed, closeErr.Code)
	require.Zero(t, f.registry.Count())
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	f := newHandlerFixture(t, nil)
	conn := f.dial(t, "/ws", nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, CloseAuthFailed))
}

func TestHandler_RegistersAndDispatchesFrames(t *testing.T) {
	req := require.New(t)
	f := newHandlerFixture(t, nil)
	conn := f.dial(t, "/ws/tok-alice", nil)

	req.Eventually(func() bool { return f.registry.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)

	req.NoError(conn.WriteJSON(map[string]any{"content": "Hello", "original_language": "en"}))
	select {
	case <-f.dispatcher.got:
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not dispatched")
	}
	f.dispatcher.mu.Lock()
	req.Equal("Hello", f.dispatcher.frames[0].Content)
	req.Nil(f.dispatcher.frames[0].RecipientID)
	f.dispatcher.mu.Unlock()

	req.NoError(conn.Close())
	req.Eventually(func() bool { return !f.registry.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)
	req.Eventually(func() bool { return len(f.dispatcher.disconnectedUsers()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_AcceptsQueryAndHeaderTokens(t *testing.T) {
	req := require.New(t)
	f := newHandlerFixture(t, nil)

	f.dial(t, "/ws?token=tok-alice", nil)
	f.dial(t, "/ws", http.Header{"Authorization": []string{"Bearer tok-bob"}})

	req.Eventually(func() bool { return f.registry.Count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_MalformedFrameGetsErrorFrame(t *testing.T) {
	req := require.New(t)
	f := newHandlerFixture(t, nil)
	conn := f.dial(t, "/ws/tok-bob", nil)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var frame types.ErrorFrame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	req.NoError(conn.ReadJSON(&frame))
	req.Equal(types.FrameTypeError, frame.Type)
	req.Equal(types.ErrorCodeInvalidFrame, frame.Error)
	req.Equal("es:error_validation", frame.Message)
}

func TestHandler_ReconnectClosesOldSocketButKeepsNewOne(t *testing.T) {
	req := require.New(t)
	f := newHandlerFixture(t, nil)
	old := f.dial(t, "/ws/tok-alice", nil)
	req.Eventually(func() bool { return f.registry.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)

	fresh := f.dial(t, "/ws/tok-alice", nil)

	_ = old.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := old.ReadMessage()
	req.Error(err)

	req.Eventually(func() bool {
		conn, ok := f.registry.Lookup("alice")
		return ok && conn != nil
	}, 2*time.Second, 10*time.Millisecond)
	req.NoError(f.registry.Send("alice", map[string]string{"type": "ping"}))

	var got map[string]string
	_ = fresh.SetReadDeadline(time.Now().Add(2 * time.Second))
	req.NoError(fresh.ReadJSON(&got))
	req.Equal("ping", got["type"])
	req.Empty(f.dispatcher.disconnectedUsers())
}

func TestHandler_ReplaysHistory(t *testing.T) {
	req := require.New(t)
	history := historyStub{frames: []types.OutboundFrame{
		{Type: types.FrameTypeMessage, ID: 1, Content: "first", Translations: map[string]string{}},
		{Type: types.FrameTypeMessage, ID: 2, Content: "second", Translations: map[string]string{}},
	}}
	f := newHandlerFixture(t, history)
	conn := f.dial(t, "/ws/tok-alice", nil)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second types.OutboundFrame
	req.NoError(conn.ReadJSON(&first))
	req.NoError(conn.ReadJSON(&second))
	req.Equal("first", first.Content)
	req.Equal("second", second.Content)

	var done types.SystemFrame
	req.NoError(conn.ReadJSON(&done))
	req.Equal(types.EventHistoryComplete, done.Event)
}

func TestHandler_HistoryFailureSendsNotice(t *testing.T) {
	f := newHandlerFixture(t, historyStub{err: errors.New("db down")})
	conn := f.dial(t, "/ws/tok-bob", nil)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var notice types.SystemFrame
	require.NoError(t, conn.ReadJSON(&notice))
	require.Equal(t, types.EventHistoryUnavailable, notice.Event)
	require.Equal(t, "es:system_history_unavailable", notice.Message)
}
