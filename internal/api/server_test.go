package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"globalchat/internal/i18n"
	"globalchat/internal/messages"
	"globalchat/internal/mocks"
	"globalchat/internal/users"
	"globalchat/pkg/types"
)

type fakeRegistry struct{}

func (fakeRegistry) GetStats() map[string]int { return map[string]int{"total_connections": 2} }

type fakeSettings struct {
	got users.Settings
}

func (f *fakeSettings) UpdateSettings(_ context.Context, id string, s users.Settings) (types.Identity, error) {
	f.got = s
	out := types.Identity{ID: id, Username: id, PreferredLanguage: "es", AutoTranslate: true}
	if s.PreferredLanguage != nil {
		out.PreferredLanguage = *s.PreferredLanguage
	}
	if s.AutoTranslate != nil {
		out.AutoTranslate = *s.AutoTranslate
	}
	return out, nil
}

type serverFixture struct {
	server     *Server
	store      *mocks.MockStore
	router     *mocks.MockMessageRouter
	translator *mocks.MockTranslator
	settings   *fakeSettings
}

var bob = types.Identity{ID: "bob", Username: "bob", PreferredLanguage: "es", AutoTranslate: true}

func newServerFixture(t *testing.T) *serverFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	f := &serverFixture{
		store:      mocks.NewMockStore(ctrl),
		router:     mocks.NewMockMessageRouter(ctrl),
		translator: mocks.NewMockTranslator(ctrl),
		settings:   &fakeSettings{},
	}
	auth := mocks.NewMockIdentityResolver(ctrl)
	auth.EXPECT().Resolve(gomock.Any(), "tok-bob").Return(bob, nil).AnyTimes()
	auth.EXPECT().Resolve(gomock.Any(), gomock.Not("tok-bob")).
		Return(types.Identity{}, types.ErrUnauthenticated).AnyTimes()

	svc := messages.NewService(f.store, f.router, f.translator, i18n.NewLocalizer("en", log), log)
	f.server = NewServer(Dependencies{
		Messages:   svc,
		Users:      f.settings,
		Auth:       auth,
		Translator: f.translator,
		Store:      f.store,
		Registry:   fakeRegistry{},
	}, log)
	return f
}

func (f *serverFixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func storedMessage(id int64, sender string, recipient *string) *types.Message {
	return &types.Message{
		ID: id, Content: "Hello", OriginalLanguage: "en", SenderID: sender, RecipientID: recipient,
		CreatedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Translations: types.NewTranslationCache(map[string]string{"es": "Hola", "fr": "Bonjour"}),
	}
}

func TestServer_RequiresBearerToken(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	for _, path := range []string{"/api/messages", "/api/me"} {
		w := f.do(http.MethodGet, path, "", "")
		req.Equal(http.StatusUnauthorized, w.Code, path)

		w = f.do(http.MethodGet, path, "", "forged")
		req.Equal(http.StatusUnauthorized, w.Code, path)
		req.Equal("application/json", w.Header().Get("Content-Type"))
	}
}

func TestServer_GetMe(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	w := f.do(http.MethodGet, "/api/me", "", "tok-bob")
	req.Equal(http.StatusOK, w.Code)
	req.Equal(bob, decodeBody[types.Identity](t, w))
}

func TestServer_UpdateMe(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	w := f.do(http.MethodPatch, "/api/me", `{"preferred_language":"fr","auto_translate":false}`, "tok-bob")
	req.Equal(http.StatusOK, w.Code)
	got := decodeBody[types.Identity](t, w)
	req.Equal("fr", got.PreferredLanguage)
	req.False(got.AutoTranslate)
	req.NotNil(f.settings.got.PreferredLanguage)
}

func TestServer_ListMessages(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	f.store.EXPECT().ListMessages(gomock.Any(), "bob", 5, 10).
		Return([]*types.Message{storedMessage(2, "alice", nil), storedMessage(1, "alice", nil)}, nil)

	w := f.do(http.MethodGet, "/api/messages?skip=5&limit=10", "", "tok-bob")
	req.Equal(http.StatusOK, w.Code)

	resp := decodeBody[ListMessagesResponse](t, w)
	req.Len(resp.Messages, 2)
	req.Equal(map[string]string{"es": "Hola"}, resp.Messages[0].Translations, "other languages never leave the server")
}

func TestServer_ListMessagesRejectsBadPaging(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	w := f.do(http.MethodGet, "/api/messages?limit=abc", "", "tok-bob")
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestServer_CreateMessage(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	f.router.EXPECT().RouteMessage(gomock.Any(), bob, types.InboundFrame{Content: "Hola", OriginalLanguage: "es"}).
		Return(&types.RouteOutcome{
			Message:    &types.Message{ID: 3, Content: "Hola", OriginalLanguage: "es", SenderID: "bob", CreatedAt: time.Now()},
			Deliveries: []types.DeliveryResult{{UserID: "alice"}},
		}, nil)

	w := f.do(http.MethodPost, "/api/messages", `{"content":"Hola","original_language":"es"}`, "tok-bob")
	req.Equal(http.StatusCreated, w.Code)

	ack := decodeBody[types.AckFrame](t, w)
	req.Equal(types.FrameTypeSent, ack.Type)
	req.Equal(int64(3), ack.Message.ID)
	req.Equal(1, ack.Delivered)
}

func TestServer_CreateMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", types.NewValidationError("content", "content must not be empty"), http.StatusBadRequest},
		{"rate limited", types.ErrRateLimited, http.StatusTooManyRequests},
		{"storage", errors.Join(types.ErrStorage, errors.New("disk I/O error")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newServerFixture(t)
			f.router.EXPECT().RouteMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tt.err)

			w := f.do(http.MethodPost, "/api/messages", `{"content":"x","original_language":"en"}`, "tok-bob")
			req.Equal(tt.code, w.Code)
			resp := decodeBody[ErrorResponse](t, w)
			req.NotContains(resp.Message, "disk I/O")
		})
	}
}

func TestServer_CreateMessageInvalidJSON(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	w := f.do(http.MethodPost, "/api/messages", `{"content":`, "tok-bob")
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestServer_GetMessage(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	f.store.EXPECT().GetMessage(gomock.Any(), int64(4)).Return(storedMessage(4, "alice", nil), nil)

	w := f.do(http.MethodGet, "/api/messages/4", "", "tok-bob")
	req.Equal(http.StatusOK, w.Code)
	resp := decodeBody[MessageResponse](t, w)
	req.Equal("Hola", resp.Message.Translations["es"])
}

func TestServer_GetMessageNotFound(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	carol := "carol"
	f.store.EXPECT().GetMessage(gomock.Any(), int64(5)).Return(storedMessage(5, "alice", &carol), nil)
	f.store.EXPECT().GetMessage(gomock.Any(), int64(6)).Return(nil, types.ErrMessageNotFound)

	req.Equal(http.StatusNotFound, f.do(http.MethodGet, "/api/messages/5", "", "tok-bob").Code)
	req.Equal(http.StatusNotFound, f.do(http.MethodGet, "/api/messages/6", "", "tok-bob").Code)
	req.Equal(http.StatusBadRequest, f.do(http.MethodGet, "/api/messages/nope", "", "tok-bob").Code)
}

func TestServer_DeleteMessage(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	f.store.EXPECT().DeleteMessage(gomock.Any(), int64(1), "bob").Return(nil)
	f.store.EXPECT().DeleteMessage(gomock.Any(), int64(2), "bob").Return(types.ErrForbidden)
	f.store.EXPECT().DeleteMessage(gomock.Any(), int64(3), "bob").Return(types.ErrMessageNotFound)

	req.Equal(http.StatusNoContent, f.do(http.MethodDelete, "/api/messages/1", "", "tok-bob").Code)
	req.Equal(http.StatusForbidden, f.do(http.MethodDelete, "/api/messages/2", "", "tok-bob").Code)
	req.Equal(http.StatusNotFound, f.do(http.MethodDelete, "/api/messages/3", "", "tok-bob").Code)
}

func TestServer_TranslateMessage(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	f.store.EXPECT().GetMessage(gomock.Any(), int64(4)).Return(storedMessage(4, "alice", nil), nil).Times(3)
	f.translator.EXPECT().Translate(gomock.Any(), "Hello", "de").Return("Hallo", nil)
	f.store.EXPECT().AddTranslation(gomock.Any(), int64(4), "de", "Hallo").Return(nil)

	w := f.do(http.MethodPost, "/api/messages/4/translate", "", "tok-bob")
	req.Equal(http.StatusOK, w.Code)
	res := decodeBody[messages.TranslationResult](t, w)
	req.Equal("Hola", res.TranslatedText, "empty body uses the caller's language")
	req.False(res.Fallback)

	w = f.do(http.MethodPost, "/api/messages/4/translate", `{"language":"de"}`, "tok-bob")
	req.Equal(http.StatusOK, w.Code)
	res = decodeBody[messages.TranslationResult](t, w)
	req.Equal("Hallo", res.TranslatedText)
	req.Equal("de", res.Language)
}

func TestServer_TranslateText(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	f.translator.EXPECT().Translate(gomock.Any(), "good morning", "ja").Return("おはよう", nil)
	f.translator.EXPECT().Translate(gomock.Any(), "fail", "ja").
		Return("", &types.TranslationError{Language: "ja", Err: errors.New("timeout")})

	w := f.do(http.MethodPost, "/api/translate", `{"text":"good morning","target_language":"Japanese"}`, "tok-bob")
	req.Equal(http.StatusOK, w.Code)
	req.Equal(TranslateTextResponse{TranslatedText: "おはよう", Language: "ja"}, decodeBody[TranslateTextResponse](t, w))

	w = f.do(http.MethodPost, "/api/translate", `{"text":"fail","target_language":"ja"}`, "tok-bob")
	req.Equal(http.StatusBadGateway, w.Code)

	w = f.do(http.MethodPost, "/api/translate", `{"target_language":"ja"}`, "tok-bob")
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestServer_Detect(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	body := `{"text":"Der schnelle braune Fuchs springt über den faulen Hund und läuft danach in den Wald zurück."}`
	w := f.do(http.MethodPost, "/api/detect", body, "tok-bob")
	req.Equal(http.StatusOK, w.Code)
	resp := decodeBody[DetectResponse](t, w)
	req.Equal("de", resp.Language)
	req.Equal("German", resp.Name)
}

func TestServer_Health(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	f.store.EXPECT().HealthCheck(gomock.Any()).Return(nil)
	w := f.do(http.MethodGet, "/health", "", "")
	req.Equal(http.StatusOK, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	req.Equal("healthy", resp.Status)
	req.Equal(2, resp.Connections["total_connections"])
	req.Contains(resp.System, "goroutines")

	f.store.EXPECT().HealthCheck(gomock.Any()).Return(errors.New("database is locked"))
	w = f.do(http.MethodGet, "/health", "", "")
	req.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	w := f.do(http.MethodOptions, "/api/messages", "", "")
	req.Equal(http.StatusOK, w.Code)
	req.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
}
