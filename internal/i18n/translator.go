package i18n

import (
	"embed"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

// Message IDs shared by the hub, the message service and the HTTP layer.
const (
	NoticeTranslationUnavailable = "notice_translation_unavailable"
	ErrorValidation              = "error_validation"
	ErrorStorage                 = "error_storage"
	ErrorRateLimited             = "error_rate_limited"
	ErrorQueueFull               = "error_queue_full"
	ErrorUnknownRecipient        = "error_unknown_recipient"
	ErrorInternal                = "error_internal"
	SystemHistoryComplete        = "system_history_complete"
	SystemHistoryUnavailable     = "system_history_unavailable"
)

var localeFiles = []string{"active.en.toml", "active.es.toml", "active.fr.toml", "active.de.toml"}

// Localizer renders user-facing notices in a user's preferred language.
// It is a thin wrapper around go-i18n's Bundle/Localizer.
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	log             *slog.Logger
}

// NewLocalizer loads the embedded catalogs with defaultLocale as fallback.
func NewLocalizer(defaultLocale string, log *slog.Logger) *Localizer {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			log.Warn("i18n: failed to load catalog", "file", file, "error", err)
		}
	}

	return &Localizer{bundle: bundle, defaultLanguage: tag, log: log}
}

// T renders key for locale, falling back to the default locale and finally
// to the key itself.
func (l *Localizer) T(locale, key string, data map[string]any) string {
	if key == "" {
		return ""
	}

	languages := []string{}
	if locale != "" {
		languages = append(languages, locale)
	}
	languages = append(languages, l.defaultLanguage.String())

	msg, err := i18n.NewLocalizer(l.bundle, languages...).Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		l.log.Debug("i18n: localize failed", "key", key, "locales", languages, "error", err)
		return key
	}
	return msg
}

// Languages lists the locales with a loaded catalog.
func (l *Localizer) Languages() []string {
	tags := l.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}
