package users

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"globalchat/internal/translation"
	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

var validate = validator.New()

// profile is the validated shape of a user write.
type profile struct {
	ID                string `validate:"required,max=64"`
	Username          string `validate:"required,max=50"`
	PreferredLanguage string `validate:"required,bcp47_language_tag"`
}

// Settings is a partial preference update; nil fields are left unchanged.
type Settings struct {
	PreferredLanguage *string `json:"preferred_language"`
	AutoTranslate     *bool   `json:"auto_translate"`
}

type cachedUser struct {
	identity types.Identity
	loadedAt time.Time
}

// Directory is a cache-first view over the user store
// ARCHITECTURAL DISCOVERY: Recipient preferences are read on every private
// message, so lookups are served from memory and only misses hit storage
type Directory struct {
	store interfaces.UserStore
	ttl   time.Duration
	log   *slog.Logger
	cache map[string]cachedUser
	mu    sync.RWMutex
}

var _ interfaces.UserDirectory = (*Directory)(nil)

// NewDirectory creates a directory. A non-positive ttl caches forever.
func NewDirectory(store interfaces.UserStore, ttl time.Duration, log *slog.Logger) *Directory {
	return &Directory{
		store: store,
		ttl:   ttl,
		log:   log,
		cache: make(map[string]cachedUser),
	}
}

// LookupUser returns the identity of id, or types.ErrUserNotFound.
func (d *Directory) LookupUser(ctx context.Context, id string) (types.Identity, error) {
	d.mu.RLock()
	cached, ok := d.cache[id]
	d.mu.RUnlock()
	if ok && (d.ttl <= 0 || time.Since(cached.loadedAt) < d.ttl) {
		return cached.identity, nil
	}

	user, err := d.store.GetUser(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}
	d.remember(*user)
	return *user, nil
}

// Register creates or replaces a user profile. An empty preferred language
// defaults to English.
func (d *Directory) Register(ctx context.Context, identity types.Identity) (types.Identity, error) {
	if identity.PreferredLanguage == "" {
		identity.PreferredLanguage = translation.DefaultLanguage
	}
	identity.PreferredLanguage = translation.Normalize(identity.PreferredLanguage)
	if identity.Username == "" {
		identity.Username = identity.ID
	}

	if !types.IsValidUserID(identity.ID) {
		return types.Identity{}, ErrInvalidUserID
	}
	if err := validate.Struct(profile{
		ID:                identity.ID,
		Username:          identity.Username,
		PreferredLanguage: identity.PreferredLanguage,
	}); err != nil {
		return types.Identity{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	if err := d.store.UpsertUser(ctx, &identity); err != nil {
		return types.Identity{}, fmt.Errorf("failed to save user: %w", err)
	}
	d.remember(identity)
	d.log.Info("User registered", "user_id", identity.ID, "language", identity.PreferredLanguage)
	return identity, nil
}

// UpdateSettings applies a partial preference update.
func (d *Directory) UpdateSettings(ctx context.Context, id string, settings Settings) (types.Identity, error) {
	current, err := d.LookupUser(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}
	if settings.PreferredLanguage != nil {
		lang := translation.Normalize(*settings.PreferredLanguage)
		if err := validate.Var(lang, "required,bcp47_language_tag"); err != nil {
			return types.Identity{}, ErrInvalidLanguage
		}
		current.PreferredLanguage = lang
	}
	if settings.AutoTranslate != nil {
		current.AutoTranslate = *settings.AutoTranslate
	}
	return d.Register(ctx, current)
}

// Invalidate drops id from the cache.
func (d *Directory) Invalidate(id string) {
	d.mu.Lock()
	delete(d.cache, id)
	d.mu.Unlock()
}

func (d *Directory) remember(identity types.Identity) {
	d.mu.Lock()
	d.cache[identity.ID] = cachedUser{identity: identity, loadedAt: time.Now()}
	d.mu.Unlock()
}
