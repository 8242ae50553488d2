//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=../../internal/mocks/mock_translator.go -package=mocks

package types

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// Translator is the narrow capability the cache needs to fill a missing entry.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// TranslationCache maps language codes to translated text for one message.
// ARCHITECTURAL DISCOVERY: Entries are insert-only and a singleflight group
// collapses concurrent fills of the same key, so each (message, language)
// pair costs at most one successful backend call.
type TranslationCache struct {
	mu      sync.RWMutex
	entries map[string]string
	group   singleflight.Group
}

// NewTranslationCache builds a cache seeded with initial. The map is copied.
func NewTranslationCache(initial map[string]string) *TranslationCache {
	c := &TranslationCache{entries: make(map[string]string, len(initial))}
	for lang, text := range initial {
		c.entries[lang] = text
	}
	return c
}

// Get returns the cached translation for lang.
func (c *TranslationCache) Get(lang string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.entries[lang]
	return text, ok
}

// Set stores text under lang unless the key already exists. It reports
// whether the value was stored.
func (c *TranslationCache) Set(lang, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]string)
	}
	if _, exists := c.entries[lang]; exists {
		return false
	}
	c.entries[lang] = text
	return true
}

// FillIfAbsent returns the translation for lang, calling translator at most
// once per key across concurrent callers. Asking for the source language
// returns text without caching. created is true only for the caller whose
// call stored the value. Failures are never cached.
func (c *TranslationCache) FillIfAbsent(ctx context.Context, lang, source, text string, translator Translator) (string, bool, error) {
	if lang == source {
		return text, false, nil
	}
	if cached, ok := c.Get(lang); ok {
		return cached, false, nil
	}

	// the flight is shared, so one caller going away must not cancel it;
	// the translator's own timeout still bounds the call
	flightCtx := context.WithoutCancel(ctx)
	created := false
	v, err, _ := c.group.Do(lang, func() (any, error) {
		// a flight that finished between Get and Do already stored the key
		if cached, ok := c.Get(lang); ok {
			return cached, nil
		}
		translated, err := translator.Translate(flightCtx, text, lang)
		if err != nil {
			return "", err
		}
		created = c.Set(lang, translated)
		if !created {
			cached, _ := c.Get(lang)
			return cached, nil
		}
		return translated, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), created, nil
}

// Snapshot returns a copy of the entries.
func (c *TranslationCache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.entries))
	for lang, text := range c.entries {
		out[lang] = text
	}
	return out
}

// Len returns the number of cached languages.
func (c *TranslationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MarshalJSON encodes the cache as a flat language -> text object.
func (c *TranslationCache) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Snapshot())
}

// UnmarshalJSON decodes a flat object, replacing the current entries.
func (c *TranslationCache) UnmarshalJSON(data []byte) error {
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// ParseTranslations decodes a persisted translations column, dropping the
// source language if present. Empty input yields an empty cache.
func ParseTranslations(raw []byte, source string) (*TranslationCache, error) {
	entries := map[string]string{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, err
		}
	}
	delete(entries, source)
	return NewTranslationCache(entries), nil
}
