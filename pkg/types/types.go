package types

import (
	"time"
)

// Identity is the authenticated view of a user the core routes against.
// ARCHITECTURAL DISCOVERY: Owned by the auth gateway and treated as read-only
// everywhere else, so a snapshot taken at connect time stays consistent for
// the lifetime of the connection.
type Identity struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	PreferredLanguage string `json:"preferred_language"`
	AutoTranslate     bool   `json:"auto_translate"`
}

// WantsTranslation reports whether a message written in original should be
// translated for this user.
func (i Identity) WantsTranslation(original string) bool {
	return i.AutoTranslate && i.PreferredLanguage != "" && i.PreferredLanguage != original
}

// SenderSummary is the sender projection hydrated on message loads.
type SenderSummary struct {
	Username          string `json:"username"`
	PreferredLanguage string `json:"preferred_language"`
}

// Message represents a persisted chat message.
// FUNCTIONAL DISCOVERY: RecipientID nil means broadcast. ID and CreatedAt are
// assigned by the store; Translations never holds OriginalLanguage.
type Message struct {
	ID               int64             `json:"id"`
	Content          string            `json:"content"`
	OriginalLanguage string            `json:"original_language"`
	SenderID         string            `json:"sender_id"`
	RecipientID      *string           `json:"recipient_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Sender           *SenderSummary    `json:"sender,omitempty"`
	Translations     *TranslationCache `json:"translations"`
}

// IsPrivate reports whether the message targets a single recipient.
func (m *Message) IsPrivate() bool {
	return m.RecipientID != nil
}

// VisibleTo reports whether userID may read the message.
func (m *Message) VisibleTo(userID string) bool {
	if m.RecipientID == nil {
		return true
	}
	return m.SenderID == userID || *m.RecipientID == userID
}

// EnsureCache guarantees Translations is non-nil.
func (m *Message) EnsureCache() *TranslationCache {
	if m.Translations == nil {
		m.Translations = NewTranslationCache(nil)
	}
	return m.Translations
}

// FrameFor renders the message for viewer. Only the viewer's own language is
// ever included. missing is true when the viewer wanted a translation that the
// cache does not hold.
func (m *Message) FrameFor(viewer Identity) (frame OutboundFrame, missing bool) {
	frame = OutboundFrame{
		Type:             FrameTypeMessage,
		ID:               m.ID,
		Content:          m.Content,
		OriginalLanguage: m.OriginalLanguage,
		SenderID:         m.SenderID,
		Sender:           m.Sender,
		RecipientID:      m.RecipientID,
		CreatedAt:        m.CreatedAt.UTC().Format(time.RFC3339Nano),
		Translations:     map[string]string{},
		Private:          m.IsPrivate(),
	}
	if !viewer.WantsTranslation(m.OriginalLanguage) {
		return frame, false
	}
	if text, ok := m.EnsureCache().Get(viewer.PreferredLanguage); ok {
		frame.Translations[viewer.PreferredLanguage] = text
		return frame, false
	}
	return frame, true
}

// RouteOutcome summarizes one routed message.
type RouteOutcome struct {
	Message         *Message
	Deliveries      []DeliveryResult
	FailedLanguages []string
}

// Delivered counts recipients whose connection accepted the payload.
func (o *RouteOutcome) Delivered() int {
	n := 0
	for _, d := range o.Deliveries {
		if d.Delivered() {
			n++
		}
	}
	return n
}

// Undelivered lists recipients that could not be reached.
func (o *RouteOutcome) Undelivered() []string {
	out := []string{}
	for _, d := range o.Deliveries {
		if !d.Delivered() {
			out = append(out, d.UserID)
		}
	}
	return out
}
