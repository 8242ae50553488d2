package translation

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// languageNames maps English language names to ISO-639-1 codes.
var languageNames = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"turkish":    "tr",
	"swedish":    "sv",
	"ukrainian":  "uk",
	"vietnamese": "vi",
}

// Normalize maps a language name or code to its code form. Known names map
// through the static table; anything else is trimmed and lower-cased.
func Normalize(nameOrCode string) string {
	key := strings.ToLower(strings.TrimSpace(nameOrCode))
	if code, ok := languageNames[key]; ok {
		return code
	}
	return key
}

// DisplayName returns the English name of a language code, or the code itself
// when x/text does not know it.
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}
