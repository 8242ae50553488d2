package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"globalchat/internal/i18n"
	"globalchat/internal/translation"
	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

// Registry is the subset of the connection registry the router depends on.
type Registry interface {
	Lookup(userID string) (interfaces.Connection, bool)
	Snapshot() []types.Identity
	Send(userID string, payload any) error
	BroadcastExcept(senderID string, payload any) []types.DeliveryResult
}

// Notices renders localized user-facing text.
type Notices interface {
	T(locale, key string, data map[string]any) string
}

// Config tunes validation, rate limiting and translation fan-out.
type Config struct {
	MaxContentLength      int
	RateLimitPerMinute    int
	MaxParallel           int
	DetectMissingLanguage bool
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{
		MaxContentLength:   4000,
		RateLimitPerMinute: 100,
		MaxParallel:        8,
	}
}

// Router implements the MessageRouter interface
// ARCHITECTURAL DISCOVERY: Translate-then-persist-then-route. Every translation a recipient
// needs is filled into the message cache once per distinct language before anything is stored or sent
type Router struct {
	registry    Registry
	store       interfaces.MessageStore
	directory   interfaces.UserDirectory
	translator  types.Translator
	notices     Notices
	rateLimiter *RateLimiter
	validate    *validator.Validate
	cfg         Config
	log         *slog.Logger
}

// NewRouter creates a new message router
func NewRouter(registry Registry, store interfaces.MessageStore, directory interfaces.UserDirectory,
	translator types.Translator, notices Notices, cfg Config, log *slog.Logger) *Router {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultConfig().MaxParallel
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultConfig().MaxContentLength
	}
	return &Router{
		registry:    registry,
		store:       store,
		directory:   directory,
		translator:  translator,
		notices:     notices,
		rateLimiter: NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
		validate:    validator.New(),
		cfg:         cfg,
		log:         log,
	}
}

// RouteMessage validates, translates, persists and delivers one inbound frame.
// Translation failures never fail the route; they are reported on the outcome.
func (r *Router) RouteMessage(ctx context.Context, sender types.Identity, frame types.InboundFrame) (*types.RouteOutcome, error) {
	msg, err := r.buildMessage(sender, frame)
	if err != nil {
		return nil, err
	}

	// TECHNICAL DISCOVERY: Rate limiting applied per user after validation so malformed frames
	// do not consume the sender's quota
	if !r.rateLimiter.Allow(sender.ID) {
		return nil, fmt.Errorf("%w: %w", types.ErrRateLimited, ErrRateLimitExceeded)
	}

	audience, err := r.resolveAudience(ctx, sender, msg)
	if err != nil {
		return nil, err
	}

	failed := r.fillTranslations(ctx, msg, audience)

	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}

	outcome := &types.RouteOutcome{
		Message:         msg,
		Deliveries:      r.deliver(msg, sender, audience),
		FailedLanguages: failed,
	}

	r.log.Debug("Message routed",
		"message_id", msg.ID,
		"sender", sender.ID,
		"private", msg.IsPrivate(),
		"audience", len(audience),
		"delivered", outcome.Delivered(),
		"translations", msg.Translations.Len(),
		"failed_languages", failed)
	return outcome, nil
}

// Cleanup drops idle rate limiter state.
func (r *Router) Cleanup() {
	r.rateLimiter.Cleanup()
}

func (r *Router) buildMessage(sender types.Identity, frame types.InboundFrame) (*types.Message, error) {
	if sender.ID == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrUnauthenticated, ErrSenderUnidentified)
	}
	if strings.TrimSpace(frame.Content) == "" {
		return nil, types.NewValidationError("content", ErrEmptyContent.Error())
	}
	if err := r.validate.Struct(frame); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, types.NewValidationError(strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return nil, types.NewValidationError("frame", err.Error())
	}
	if utf8.RuneCountInString(frame.Content) > r.cfg.MaxContentLength {
		return nil, types.NewValidationError("content", ErrContentTooLong.Error())
	}

	lang, err := r.originalLanguage(frame)
	if err != nil {
		return nil, err
	}

	msg := &types.Message{
		Content:          frame.Content,
		OriginalLanguage: lang,
		SenderID:         sender.ID,
		CreatedAt:        time.Now().UTC(),
		Sender: &types.SenderSummary{
			Username:          sender.Username,
			PreferredLanguage: sender.PreferredLanguage,
		},
		Translations: types.NewTranslationCache(nil),
	}

	if frame.RecipientID != nil {
		recipient := strings.TrimSpace(*frame.RecipientID)
		switch {
		case recipient == "":
			return nil, types.NewValidationError("recipient_id", ErrEmptyRecipient.Error())
		case recipient == sender.ID:
			return nil, types.NewValidationError("recipient_id", ErrSelfRecipient.Error())
		}
		msg.RecipientID = &recipient
	}
	return msg, nil
}

func (r *Router) originalLanguage(frame types.InboundFrame) (string, error) {
	raw := strings.TrimSpace(frame.OriginalLanguage)
	if raw == "" {
		if !r.cfg.DetectMissingLanguage {
			return "", types.NewValidationError("original_language", ErrMissingLanguage.Error())
		}
		detected := translation.Detect(frame.Content)
		return detected.Language, nil
	}

	lang := translation.Normalize(raw)
	if _, err := language.Parse(lang); err != nil || !types.IsValidLanguageCode(lang) {
		return "", types.NewValidationError("original_language", ErrInvalidLanguage.Error())
	}
	return lang, nil
}

// resolveAudience returns the identities the message will be delivered to,
// captured once so translation and delivery see the same set.
func (r *Router) resolveAudience(ctx context.Context, sender types.Identity, msg *types.Message) ([]types.Identity, error) {
	if !msg.IsPrivate() {
		return lo.Filter(r.registry.Snapshot(), func(id types.Identity, _ int) bool {
			return id.ID != sender.ID
		}), nil
	}

	recipientID := *msg.RecipientID
	if conn, ok := r.registry.Lookup(recipientID); ok {
		return []types.Identity{conn.Identity()}, nil
	}

	recipient, err := r.directory.LookupUser(ctx, recipientID)
	if err != nil {
		if errors.Is(err, types.ErrUserNotFound) {
			return nil, types.NewValidationError("recipient_id", ErrRecipientNotFound.Error())
		}
		return nil, fmt.Errorf("%w: recipient lookup: %w", types.ErrStorage, err)
	}
	return []types.Identity{recipient}, nil
}

// fillTranslations requests each distinct target language once, bounded by
// MaxParallel. It returns the languages whose translation failed, sorted.
func (r *Router) fillTranslations(ctx context.Context, msg *types.Message, audience []types.Identity) []string {
	targets := lo.Uniq(lo.FilterMap(audience, func(id types.Identity, _ int) (string, bool) {
		return id.PreferredLanguage, id.WantsTranslation(msg.OriginalLanguage)
	}))
	if len(targets) == 0 {
		return nil
	}

	cache := msg.EnsureCache()
	var (
		mu     sync.Mutex
		failed []string
		g      errgroup.Group
	)
	g.SetLimit(r.cfg.MaxParallel)

	for _, lang := range targets {
		g.Go(func() error {
			if _, _, err := cache.FillIfAbsent(ctx, lang, msg.OriginalLanguage, msg.Content, r.translator); err != nil {
				r.log.Warn("Translation failed, recipients receive the original",
					"language", lang,
					"sender", msg.SenderID,
					"error", err)
				mu.Lock()
				failed = append(failed, lang)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(failed)
	return failed
}

func (r *Router) deliver(msg *types.Message, sender types.Identity, audience []types.Identity) []types.DeliveryResult {
	if msg.IsPrivate() {
		recipient := audience[0]
		err := r.registry.Send(recipient.ID, r.frameFor(msg, recipient))
		return []types.DeliveryResult{{UserID: recipient.ID, Err: err}}
	}

	return r.registry.BroadcastExcept(sender.ID, &audiencePayload{
		audience: lo.KeyBy(audience, func(id types.Identity) string { return id.ID }),
		render: func(viewer types.Identity) any {
			return r.frameFor(msg, viewer)
		},
	})
}

// frameFor renders the viewer's frame and attaches a localized notice when a
// wanted translation is unavailable.
func (r *Router) frameFor(msg *types.Message, viewer types.Identity) types.OutboundFrame {
	frame, missing := msg.FrameFor(viewer)
	if missing && r.notices != nil {
		frame.Notice = r.notices.T(viewer.PreferredLanguage, i18n.NoticeTranslationUnavailable, nil)
	}
	return frame
}

// audiencePayload restricts a broadcast to the identities captured before
// translation. Users who connected later are skipped.
type audiencePayload struct {
	audience map[string]types.Identity
	render   func(viewer types.Identity) any
}

func (p *audiencePayload) PayloadFor(userID string) (any, bool) {
	viewer, ok := p.audience[userID]
	if !ok {
		return nil, false
	}
	return p.render(viewer), true
}
