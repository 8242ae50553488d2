package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"globalchat/internal/i18n"
	"globalchat/internal/router"
	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

// Sender delivers a payload to one connected user.
type Sender interface {
	Send(userID string, payload any) error
}

// Notices renders localized user-facing text.
type Notices interface {
	T(locale, key string, data map[string]any) string
}

// Config sizes the hub's queues.
type Config struct {
	LaneSize        int
	RouteTimeout    time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		LaneSize:        64,
		RouteTimeout:    30 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// Hub coordinates inbound frames between connections and the router
// ARCHITECTURAL DISCOVERY: One lane per sender keeps a sender's messages in order
// while different senders are routed in parallel, so one slow translation
// never stalls the whole room
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channels prevent blocking during message bursts
	unregisterChannel chan string
	shutdownChannel   chan struct{}

	registry Sender
	router   interfaces.MessageRouter
	notices  Notices
	cfg      Config
	log      *slog.Logger

	lanes    map[string]*lane
	retiring map[string]*lane
	lanesWG  sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// TECHNICAL DISCOVERY: The same mutex guards lane creation, lane close and
	// enqueue, so a frame is never sent on a closed lane
	running bool
	mu      sync.Mutex
}

// MessageContext wraps an inbound frame with its sender
type MessageContext struct {
	Sender     types.Identity
	Frame      types.InboundFrame
	ReceivedAt time.Time
}

// lane is one sender's queue. A lane opened while the sender's previous lane
// is still draining waits for it, so order holds across a reconnect.
type lane struct {
	userID string
	ch     chan *MessageContext
	done   chan struct{}
	after  <-chan struct{}
}

// NewHub creates a new hub
func NewHub(registry Sender, router interfaces.MessageRouter, notices Notices, cfg Config, log *slog.Logger) *Hub {
	defaults := DefaultConfig()
	if cfg.LaneSize <= 0 {
		cfg.LaneSize = defaults.LaneSize
	}
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = defaults.RouteTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	return &Hub{
		unregisterChannel: make(chan string, 100),
		registry:          registry,
		router:            router,
		notices:           notices,
		cfg:               cfg,
		log:               log,
		lanes:             make(map[string]*lane),
		retiring:          make(map[string]*lane),
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.log.Info("Starting message hub")
	go h.run(h.ctx, h.shutdownChannel)
	return nil
}

// Stop closes every lane and waits for queued frames to drain
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	for userID := range h.lanes {
		h.closeLaneLocked(userID)
	}
	close(h.shutdownChannel)
	h.mu.Unlock()

	h.log.Info("Stopping message hub")
	h.lanesWG.Wait()
	h.cancel()
	return nil
}

// Submit queues frame on the sender's lane. It never blocks; a full lane
// returns ErrMessageChannelFull.
func (h *Hub) Submit(sender types.Identity, frame types.InboundFrame) error {
	if sender.ID == "" {
		return ErrSenderUnidentified
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}

	l, ok := h.lanes[sender.ID]
	if !ok {
		l = &lane{userID: sender.ID, ch: make(chan *MessageContext, h.cfg.LaneSize), done: make(chan struct{})}
		if prev, ok := h.retiring[sender.ID]; ok {
			l.after = prev.done
		}
		h.lanes[sender.ID] = l
		h.lanesWG.Add(1)
		go h.drain(h.ctx, l)
	}

	// TECHNICAL DISCOVERY: Non-blocking send with error handling prevents reader lockup
	select {
	case l.ch <- &MessageContext{Sender: sender, Frame: frame, ReceivedAt: time.Now()}:
		return nil
	default:
		return ErrMessageChannelFull
	}
}

// Disconnected retires the user's lane once its queued frames are routed
func (h *Hub) Disconnected(userID string) {
	select {
	case h.unregisterChannel <- userID:
	default:
		h.mu.Lock()
		h.closeLaneLocked(userID)
		h.mu.Unlock()
	}
}

// Retiring returns the number of closed lanes still routing queued frames
func (h *Hub) Retiring() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.retiring)
}

// Lanes returns the number of active sender lanes
func (h *Hub) Lanes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lanes)
}

// IsRunning reports whether the hub accepts frames
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// run handles lane retirement and periodic maintenance
// TECHNICAL DISCOVERY: Single select loop keeps lifecycle events off the routing path
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	defer h.log.Debug("Hub processing stopped")

	ticker := time.NewTicker(h.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case userID := <-h.unregisterChannel:
			h.mu.Lock()
			h.closeLaneLocked(userID)
			h.mu.Unlock()

		case <-ticker.C:
			if c, ok := h.router.(interface{ Cleanup() }); ok {
				c.Cleanup()
			}

		case <-shutdown:
			return

		case <-ctx.Done():
			h.log.Info("Hub context cancelled")
			return
		}
	}
}

func (h *Hub) closeLaneLocked(userID string) {
	if l, ok := h.lanes[userID]; ok {
		delete(h.lanes, userID)
		close(l.ch)
		h.retiring[userID] = l
	}
}

// drain routes one sender's frames in arrival order, after any earlier lane
// of the same sender has finished
func (h *Hub) drain(ctx context.Context, l *lane) {
	defer h.lanesWG.Done()
	defer func() {
		h.mu.Lock()
		if h.retiring[l.userID] == l {
			delete(h.retiring, l.userID)
		}
		h.mu.Unlock()
		close(l.done)
	}()

	if l.after != nil {
		<-l.after
	}
	for msgCtx := range l.ch {
		h.handleMessage(ctx, msgCtx)
	}
}

// handleMessage routes one frame and reports the result to its sender
// FUNCTIONAL DISCOVERY: Router errors are reported to the sender but never crash the hub
func (h *Hub) handleMessage(ctx context.Context, msgCtx *MessageContext) {
	routeCtx, cancel := context.WithTimeout(ctx, h.cfg.RouteTimeout)
	defer cancel()

	sender := msgCtx.Sender
	outcome, err := h.router.RouteMessage(routeCtx, sender, msgCtx.Frame)
	if err != nil {
		h.log.Warn("Message routing failed", "sender", sender.ID, "error", err)
		h.reply(sender.ID, h.errorFrame(sender, err))
		return
	}

	view, _ := outcome.Message.FrameFor(sender)
	h.reply(sender.ID, types.AckFrame{
		Type:         types.FrameTypeSent,
		Message:      view,
		Delivered:    outcome.Delivered(),
		Undelivered:  outcome.Undelivered(),
		Untranslated: append([]string{}, outcome.FailedLanguages...),
	})
	h.log.Debug("Message routed successfully",
		"message_id", outcome.Message.ID,
		"sender", sender.ID,
		"queued_for", time.Since(msgCtx.ReceivedAt))
}

func (h *Hub) reply(userID string, payload any) {
	if err := h.registry.Send(userID, payload); err != nil {
		h.log.Debug("Failed to reply to sender", "user_id", userID, "error", err)
	}
}

// errorFrame maps a routing error to a wire code and a localized message
// without exposing internal details
func (h *Hub) errorFrame(sender types.Identity, err error) types.ErrorFrame {
	code, key := types.ErrorCodeInternal, i18n.ErrorInternal
	var data map[string]any

	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		code, key = types.ErrorCodeValidation, i18n.ErrorValidation
		data = map[string]any{"Reason": verr.Reason}
		if verr.Field == "recipient_id" && verr.Reason == router.ErrRecipientNotFound.Error() {
			key = i18n.ErrorUnknownRecipient
		}
	case errors.Is(err, types.ErrRateLimited):
		code, key = types.ErrorCodeRateLimited, i18n.ErrorRateLimited
	case errors.Is(err, types.ErrStorage):
		code, key = types.ErrorCodeStorage, i18n.ErrorStorage
	}

	return types.ErrorFrame{
		Type:    types.FrameTypeError,
		Error:   code,
		Message: h.notices.T(sender.PreferredLanguage, key, data),
	}
}
