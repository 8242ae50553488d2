package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"globalchat/internal/i18n"
	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

// CloseAuthFailed is the close code sent when the handshake token is rejected.
const CloseAuthFailed = 4001

// WebSocket upgrader
// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across different handler instances
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Dispatcher receives decoded frames and disconnect notifications.
type Dispatcher interface {
	Submit(sender types.Identity, frame types.InboundFrame) error
	Disconnected(userID string)
}

// HistoryProvider renders recent messages for a newly connected user, oldest first.
type HistoryProvider interface {
	History(ctx context.Context, viewer types.Identity, limit int) ([]types.OutboundFrame, error)
}

// Localizer renders user-facing text.
type Localizer interface {
	T(locale, key string, data map[string]any) string
}

// HandlerConfig carries the socket timings.
type HandlerConfig struct {
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	BufferSize    int
	HistoryLimit  int
	MaxFrameBytes int64
}

// Handler authenticates, registers and pumps websocket connections
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from routing
// integrates with Registry for connection management and interfaces for external dependencies
type Handler struct {
	registry   *Registry
	auth       interfaces.IdentityResolver
	dispatcher Dispatcher
	history    HistoryProvider
	localizer  Localizer
	cfg        HandlerConfig
	log        *slog.Logger
}

// NewHandler creates a new WebSocket handler. history may be nil.
func NewHandler(
	registry *Registry,
	auth interfaces.IdentityResolver,
	dispatcher Dispatcher,
	history HistoryProvider,
	localizer Localizer,
	cfg HandlerConfig,
	log *slog.Logger,
) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Handler{
		registry:   registry,
		auth:       auth,
		dispatcher: dispatcher,
		history:    history,
		localizer:  localizer,
		cfg:        cfg,
		log:        log,
	}
}

// HandleWebSocket upgrades the request, then authenticates the token.
// FUNCTIONAL DISCOVERY: Authentication happens after the upgrade so a bad
// token is reported with close code 4001 instead of a bare HTTP error
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	conn := NewConnection(raw, h.cfg.BufferSize, h.cfg.WriteTimeout)

	identity, err := h.resolve(r.Context(), token)
	if err != nil {
		h.log.Info("WebSocket authentication failed", "error", err)
		_ = conn.CloseWithCode(CloseAuthFailed, "authentication failed")
		return
	}
	conn.SetIdentity(identity)

	if err := h.registry.Connect(identity.ID, conn); err != nil {
		h.log.Error("Failed to register connection", "user_id", identity.ID, "error", err)
		_ = conn.Close()
		return
	}
	h.log.Info("User connected", "user_id", identity.ID, "connection_id", conn.ID())

	if h.history != nil && h.cfg.HistoryLimit > 0 {
		go h.sendHistory(conn)
	}

	go h.handleConnection(conn)
}

func (h *Handler) resolve(ctx context.Context, token string) (types.Identity, error) {
	if token == "" {
		return types.Identity{}, ErrMissingToken
	}
	return h.auth.Resolve(ctx, token)
}

// tokenFromRequest checks the /ws/{token} path, then ?token=, then the
// Authorization header.
func tokenFromRequest(r *http.Request) string {
	if token := r.PathValue("token"); token != "" {
		return token
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// sendHistory replays recent messages to a new connection
// ARCHITECTURAL DISCOVERY: Asynchronous history replay prevents blocking
// connection setup while ensuring message history is delivered
func (h *Handler) sendHistory(conn *Connection) {
	viewer := conn.Identity()
	ctx, cancel := context.WithTimeout(conn.ctx, 30*time.Second)
	defer cancel()

	frames, err := h.history.History(ctx, viewer, h.cfg.HistoryLimit)
	if err != nil {
		h.log.Warn("Failed to load history", "user_id", viewer.ID, "error", err)
		_ = conn.WriteJSON(types.SystemFrame{
			Type:    types.FrameTypeSystem,
			Event:   types.EventHistoryUnavailable,
			Message: h.localizer.T(viewer.PreferredLanguage, i18n.SystemHistoryUnavailable, nil),
		})
		return
	}

	for _, frame := range frames {
		if err := conn.WriteJSON(frame); err != nil {
			h.log.Debug("History replay interrupted", "user_id", viewer.ID, "error", err)
			return
		}
	}

	_ = conn.WriteJSON(types.SystemFrame{
		Type:    types.FrameTypeSystem,
		Event:   types.EventHistoryComplete,
		Message: h.localizer.T(viewer.PreferredLanguage, i18n.SystemHistoryComplete, map[string]any{"Count": len(frames)}),
	})
}

// handleConnection runs the read pump and heartbeat for one connection
func (h *Handler) handleConnection(conn *Connection) {
	identity := conn.Identity()
	defer func() {
		released := h.registry.Release(conn)
		if released || !h.registry.IsConnected(identity.ID) {
			h.dispatcher.Disconnected(identity.ID)
		}
		_ = conn.Close()
		h.log.Info("User disconnected", "user_id", identity.ID, "connection_id", conn.ID())
	}()

	if h.cfg.MaxFrameBytes > 0 {
		conn.conn.SetReadLimit(h.cfg.MaxFrameBytes)
	}
	// TECHNICAL DISCOVERY: read deadline is refreshed by pongs; the ping
	// interval must stay below ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("WebSocket read error", "user_id", identity.ID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame types.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(conn, types.ErrorCodeInvalidFrame, i18n.ErrorValidation, map[string]any{"Reason": "malformed JSON"})
			continue
		}
		if err := h.dispatcher.Submit(identity, frame); err != nil {
			h.log.Warn("Dispatch rejected frame", "user_id", identity.ID, "error", err)
			h.sendError(conn, types.ErrorCodeQueueFull, i18n.ErrorQueueFull, nil)
		}
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) sendError(conn *Connection, code, key string, data map[string]any) {
	locale := conn.Identity().PreferredLanguage
	_ = conn.WriteJSON(types.ErrorFrame{
		Type:    types.FrameTypeError,
		Error:   code,
		Message: h.localizer.T(locale, key, data),
	})
}
