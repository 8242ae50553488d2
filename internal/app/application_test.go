package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"globalchat/internal/api"
	"globalchat/internal/config"
	"globalchat/pkg/types"
)

// countingBackend translates by suffixing the target language and counts calls.
type countingBackend struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func (b *countingBackend) Complete(_ context.Context, text, lang string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[lang]++
	if b.fail[lang] {
		return "", errors.New("backend unavailable")
	}
	return text + " [" + lang + "]", nil
}

func (b *countingBackend) count(lang string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[lang]
}

type harness struct {
	app     *Application
	backend *countingBackend
	tokens  map[string]string
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	req := require.New(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "globalchat.db")
	cfg.Database.WriteRetryDelay = 0
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.WebSocket.HistoryLimit = 0

	backend := &countingBackend{calls: map[string]int{}, fail: map[string]bool{}}
	application, err := NewApplication(ctx, cfg, logs.GetLoggerFromLevel(slog.LevelDebug), WithTranslationBackend(backend))
	req.NoError(err)
	req.NoError(application.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	})

	h := &harness{app: application, backend: backend, tokens: map[string]string{}}
	for _, u := range []types.Identity{
		{ID: "alice", Username: "alice", PreferredLanguage: "en", AutoTranslate: true},
		{ID: "bob", Username: "bob", PreferredLanguage: "es", AutoTranslate: true},
		{ID: "carol", Username: "carol", PreferredLanguage: "es", AutoTranslate: true},
		{ID: "dave", Username: "dave", PreferredLanguage: "fr", AutoTranslate: false},
	} {
		_, err := application.Users().Register(ctx, u)
		req.NoError(err)
		token, err := application.Auth().IssueToken(u.ID, u.Username, time.Hour)
		req.NoError(err)
		h.tokens[u.ID] = token
	}
	return h
}

func (h *harness) dial(t *testing.T, userID string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial("ws://"+h.app.GetAddr()+"/ws/"+h.tokens[userID], nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON[T any](t *testing.T, conn *gws.Conn) T {
	t.Helper()
	var v T
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func (h *harness) get(t *testing.T, userID, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://"+h.app.GetAddr()+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.tokens[userID])
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApplication_BroadcastFanOut(t *testing.T) {
	req := require.New(t)
	h := startHarness(t)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	carol := h.dial(t, "carol")
	dave := h.dial(t, "dave")
	req.Eventually(func() bool { return h.app.registry.Count() == 4 }, 2*time.Second, 10*time.Millisecond)

	req.NoError(alice.WriteJSON(types.InboundFrame{Content: "Hello", OriginalLanguage: "en"}))

	for _, conn := range []*gws.Conn{bob, carol} {
		frame := readJSON[types.OutboundFrame](t, conn)
		req.Equal(types.FrameTypeMessage, frame.Type)
		req.Equal("Hello", frame.Content)
		req.Equal(map[string]string{"es": "Hello [es]"}, frame.Translations)
	}
	daveFrame := readJSON[types.OutboundFrame](t, dave)
	req.Empty(daveFrame.Translations)

	ack := readJSON[types.AckFrame](t, alice)
	req.Equal(types.FrameTypeSent, ack.Type)
	req.Equal(3, ack.Delivered)
	req.Empty(ack.Untranslated)
	req.Equal(1, h.backend.count("es"), "one translation per distinct language")
	req.Equal(0, h.backend.count("fr"))

	resp := h.get(t, "bob", "/api/messages")
	req.Equal(http.StatusOK, resp.StatusCode)
	var list api.ListMessagesResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&list))
	req.Len(list.Messages, 1)
	req.Equal("Hello [es]", list.Messages[0].Translations["es"])
	req.Equal(1, h.backend.count("es"), "history reads reuse the persisted translation")
}

func TestApplication_PrivateMessageAndFailure(t *testing.T) {
	req := require.New(t)
	h := startHarness(t)
	h.backend.fail["es"] = true

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	carol := h.dial(t, "carol")
	req.Eventually(func() bool { return h.app.registry.Count() == 3 }, 2*time.Second, 10*time.Millisecond)

	recipient := "bob"
	req.NoError(alice.WriteJSON(types.InboundFrame{Content: "psst", OriginalLanguage: "en", RecipientID: &recipient}))

	frame := readJSON[types.OutboundFrame](t, bob)
	req.True(frame.Private)
	req.Equal("psst", frame.Content)
	req.Empty(frame.Translations)
	req.NotEmpty(frame.Notice)

	ack := readJSON[types.AckFrame](t, alice)
	req.Equal(1, ack.Delivered)
	req.Equal([]string{"es"}, ack.Untranslated)

	// carol must not see the private message, over the socket or over HTTP
	req.NoError(carol.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, _, err := carol.ReadMessage()
	req.Error(err)

	resp := h.get(t, "carol", "/api/messages")
	var list api.ListMessagesResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&list))
	req.Empty(list.Messages)
}

func TestApplication_RejectsBadToken(t *testing.T) {
	req := require.New(t)
	h := startHarness(t)

	conn, _, err := gws.DefaultDialer.Dial("ws://"+h.app.GetAddr()+"/ws/not-a-token", nil)
	req.NoError(err)
	defer conn.Close()

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *gws.CloseError
	req.True(errors.As(err, &closeErr))
	req.Equal(4001, closeErr.Code)
	req.Equal(0, h.app.registry.Count())
}

func TestApplication_Health(t *testing.T) {
	req := require.New(t)
	h := startHarness(t)

	resp, err := http.Get("http://" + h.app.GetAddr() + "/health")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	req.True(strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}
