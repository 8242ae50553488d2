//go:generate go run go.uber.org/mock/mockgen -source=gateway.go -destination=../mocks/mock_backend.go -package=mocks

package translation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"globalchat/pkg/types"
)

// Backend is the raw machine translation capability.
type Backend interface {
	Complete(ctx context.Context, text, targetLanguage string) (string, error)
}

// Gateway adapts a Backend into a types.Translator: it normalizes the target,
// bounds the call with a timeout and cleans up the model output.
type Gateway struct {
	backend Backend
	timeout time.Duration
	log     *slog.Logger
}

var _ types.Translator = (*Gateway)(nil)

// NewGateway builds a gateway. A non-positive timeout leaves calls unbounded
// beyond the caller's context.
func NewGateway(backend Backend, timeout time.Duration, log *slog.Logger) *Gateway {
	return &Gateway{backend: backend, timeout: timeout, log: log}
}

// Translate returns text rendered in targetLanguage. Every failure is a
// *types.TranslationError.
func (g *Gateway) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	lang := Normalize(targetLanguage)
	if lang == "" {
		return "", &types.TranslationError{Language: targetLanguage, Err: ErrEmptyTarget}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.backend.Complete(ctx, text, lang)
	if err != nil {
		g.log.Warn("Translation failed", "language", lang, "error", err, "elapsed", time.Since(start))
		return "", &types.TranslationError{Language: lang, Err: err}
	}

	out = cleanOutput(out)
	if out == "" {
		return "", &types.TranslationError{Language: lang, Err: ErrEmptyResult}
	}
	g.log.Debug("Translated", "language", lang, "elapsed", time.Since(start))
	return out, nil
}

const quoteCutset = "'\"‘’‚‛“”„«»‹›"

// cleanOutput strips enclosing single and double quotes, straight or
// typographic, and surrounding whitespace that chat models tend to add.
func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, quoteCutset)
	return strings.TrimSpace(s)
}
