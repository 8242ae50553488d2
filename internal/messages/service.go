package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"globalchat/internal/i18n"
	"globalchat/internal/translation"
	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	renderParallel  = 4
)

// Notices renders localized user-facing text.
type Notices interface {
	T(locale, key string, data map[string]any) string
}

// TranslationResult is the answer to an on-demand translation request.
type TranslationResult struct {
	MessageID      int64  `json:"message_id"`
	TranslatedText string `json:"translated_text"`
	Language       string `json:"language"`
	Fallback       bool   `json:"fallback"`
	Notice         string `json:"notice,omitempty"`
}

// Service is the request/response path over persisted messages. Every read
// is rendered for a single viewer and carries only the viewer's language.
type Service struct {
	store      interfaces.MessageStore
	router     interfaces.MessageRouter
	translator types.Translator
	notices    Notices
	live       *liveCaches
	flights    singleflight.Group
	log        *slog.Logger
}

// NewService wires the message service.
func NewService(store interfaces.MessageStore, router interfaces.MessageRouter, translator types.Translator,
	notices Notices, log *slog.Logger) *Service {
	return &Service{
		store:      store,
		router:     router,
		translator: translator,
		notices:    notices,
		live:       newLiveCaches(),
		log:        log,
	}
}

// Create routes a message posted over HTTP exactly like a websocket frame.
func (s *Service) Create(ctx context.Context, sender types.Identity, frame types.InboundFrame) (*types.RouteOutcome, error) {
	return s.router.RouteMessage(ctx, sender, frame)
}

// Get returns one message rendered for viewer. Private messages the viewer
// cannot see are reported as not found.
func (s *Service) Get(ctx context.Context, viewer types.Identity, id int64) (types.OutboundFrame, error) {
	msg, release, err := s.acquire(ctx, id, nil)
	if err != nil {
		return types.OutboundFrame{}, err
	}
	defer release()

	if !msg.VisibleTo(viewer.ID) {
		return types.OutboundFrame{}, types.ErrMessageNotFound
	}
	return s.render(ctx, msg, viewer), nil
}

// List returns a page of messages visible to viewer, newest first.
func (s *Service) List(ctx context.Context, viewer types.Identity, skip, limit int) ([]types.OutboundFrame, error) {
	skip, limit = clampPage(skip, limit)

	page, err := s.store.ListMessages(ctx, viewer.ID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %w", types.ErrStorage, err)
	}

	frames := make([]types.OutboundFrame, len(page))
	var g errgroup.Group
	g.SetLimit(renderParallel)
	for i, stored := range page {
		g.Go(func() error {
			msg, release, err := s.acquire(ctx, stored.ID, stored)
			if err != nil {
				return err
			}
			defer release()
			frames[i] = s.render(ctx, msg, viewer)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// History returns the most recent messages for viewer, oldest first. It
// backs the replay sent to a freshly connected websocket.
func (s *Service) History(ctx context.Context, viewer types.Identity, limit int) ([]types.OutboundFrame, error) {
	frames, err := s.List(ctx, viewer, 0, limit)
	if err != nil {
		return nil, err
	}
	return lo.Reverse(frames), nil
}

// Translate returns message id in target, or in the viewer's preferred
// language when target is empty. A failed translation falls back to the
// original content.
func (s *Service) Translate(ctx context.Context, viewer types.Identity, id int64, target string) (TranslationResult, error) {
	if target == "" {
		target = viewer.PreferredLanguage
	}
	target = translation.Normalize(target)
	if !types.IsValidLanguageCode(target) {
		return TranslationResult{}, types.NewValidationError("language", ErrInvalidLanguage.Error())
	}

	msg, release, err := s.acquire(ctx, id, nil)
	if err != nil {
		return TranslationResult{}, err
	}
	defer release()

	if !msg.VisibleTo(viewer.ID) {
		return TranslationResult{}, types.ErrMessageNotFound
	}

	text, err := s.fill(ctx, msg, target)
	if err != nil {
		return TranslationResult{
			MessageID:      msg.ID,
			TranslatedText: msg.Content,
			Language:       msg.OriginalLanguage,
			Fallback:       true,
			Notice:         s.notices.T(viewer.PreferredLanguage, i18n.NoticeTranslationUnavailable, nil),
		}, nil
	}
	return TranslationResult{MessageID: msg.ID, TranslatedText: text, Language: target}, nil
}

// Delete removes a message owned by requester.
func (s *Service) Delete(ctx context.Context, requester types.Identity, id int64) error {
	if id <= 0 {
		return types.ErrMessageNotFound
	}
	if err := s.store.DeleteMessage(ctx, id, requester.ID); err != nil {
		return err
	}
	s.log.Info("Message deleted", "message_id", id, "user_id", requester.ID)
	return nil
}

// render fills the viewer's translation when wanted and builds the frame.
func (s *Service) render(ctx context.Context, msg *types.Message, viewer types.Identity) types.OutboundFrame {
	if viewer.WantsTranslation(msg.OriginalLanguage) {
		_, _ = s.fill(ctx, msg, viewer.PreferredLanguage)
	}
	frame, missing := msg.FrameFor(viewer)
	if missing {
		frame.Notice = s.notices.T(viewer.PreferredLanguage, i18n.NoticeTranslationUnavailable, nil)
	}
	return frame
}

// fill translates msg into lang. One flight per (message, language) spans
// the storage re-check, the backend call and the persist, so requests holding
// different or stale copies of the message still share a single translation.
func (s *Service) fill(ctx context.Context, msg *types.Message, lang string) (string, error) {
	cache := msg.EnsureCache()
	if lang == msg.OriginalLanguage {
		return msg.Content, nil
	}
	if text, ok := cache.Get(lang); ok {
		return text, nil
	}

	v, err, _ := s.flights.Do(fmt.Sprintf("%d/%s", msg.ID, lang), func() (any, error) {
		return s.fillOnce(context.WithoutCancel(ctx), msg, lang)
	})
	if err != nil {
		s.log.Warn("On-demand translation failed", "message_id", msg.ID, "language", lang, "error", err)
		return "", err
	}

	text := v.(string)
	if !cache.Set(lang, text) {
		text, _ = cache.Get(lang)
	}
	return text, nil
}

func (s *Service) fillOnce(ctx context.Context, msg *types.Message, lang string) (string, error) {
	// msg may have been loaded before another request persisted lang
	current, err := s.store.GetMessage(ctx, msg.ID)
	switch {
	case err == nil:
		if text, ok := current.EnsureCache().Get(lang); ok {
			return text, nil
		}
	case errors.Is(err, types.ErrMessageNotFound):
		return "", err
	default:
		s.log.Warn("Translation re-check failed", "message_id", msg.ID, "error", err)
	}

	text, created, err := msg.EnsureCache().FillIfAbsent(ctx, lang, msg.OriginalLanguage, msg.Content, s.translator)
	if err != nil {
		return "", err
	}
	if created {
		if err := s.store.AddTranslation(ctx, msg.ID, lang, text); err != nil {
			s.log.Error("Failed to persist translation", "message_id", msg.ID, "language", lang, "error", err)
		}
	}
	return text, nil
}

// acquire returns the live instance of message id, loading it (or adopting
// seed) when no request holds it yet. release must be called when done.
func (s *Service) acquire(ctx context.Context, id int64, seed *types.Message) (*types.Message, func(), error) {
	if id <= 0 {
		return nil, nil, types.ErrMessageNotFound
	}
	if msg, ok := s.live.get(id); ok {
		return msg, func() { s.live.release(id) }, nil
	}

	if seed == nil {
		loaded, err := s.store.GetMessage(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		seed = loaded
	}
	seed.EnsureCache()
	return s.live.adopt(seed), func() { s.live.release(id) }, nil
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return skip, limit
}

// liveCaches shares one in-memory message (and so one TranslationCache) per
// id among concurrent requests. Entries are reference counted.
type liveCaches struct {
	mu      sync.Mutex
	entries map[int64]*liveEntry
}

type liveEntry struct {
	msg  *types.Message
	refs int
}

func newLiveCaches() *liveCaches {
	return &liveCaches{entries: make(map[int64]*liveEntry)}
}

func (l *liveCaches) get(id int64) (*types.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return nil, false
	}
	e.refs++
	return e.msg, true
}

// adopt registers msg unless another request won the race, in which case
// the existing instance is returned.
func (l *liveCaches) adopt(msg *types.Message) *types.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[msg.ID]; ok {
		e.refs++
		return e.msg
	}
	l.entries[msg.ID] = &liveEntry{msg: msg, refs: 1}
	return msg
}

func (l *liveCaches) release(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.entries, id)
	}
}

func (l *liveCaches) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
