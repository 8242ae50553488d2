package translation

import (
	"github.com/abadojack/whatlanggo"
)

// DefaultLanguage is reported when detection is inconclusive.
const DefaultLanguage = "en"

// Detection is the result of language identification.
type Detection struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Reliable   bool    `json:"reliable"`
}

// Detect identifies the language of text. Unreliable or unknown results fall
// back to DefaultLanguage with Reliable=false.
func Detect(text string) Detection {
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" || !info.IsReliable() {
		return Detection{Language: DefaultLanguage, Confidence: info.Confidence}
	}
	return Detection{Language: code, Confidence: info.Confidence, Reliable: true}
}
