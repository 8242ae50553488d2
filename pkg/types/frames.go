package types

// Frame type discriminators on the websocket wire.
const (
	FrameTypeMessage = "message"
	FrameTypeSent    = "sent"
	FrameTypeError   = "error"
	FrameTypeSystem  = "system"
)

// InboundFrame is what a client sends to post a message.
type InboundFrame struct {
	Content          string  `json:"content" validate:"required"`
	OriginalLanguage string  `json:"original_language"`
	RecipientID      *string `json:"recipient_id,omitempty" validate:"omitempty,min=1"`
}

// OutboundFrame is one recipient's view of a message.
// TECHNICAL DISCOVERY: Translations holds at most one entry, the recipient's
// preferred language, so other users' languages never leak over the wire.
type OutboundFrame struct {
	Type             string            `json:"type"`
	ID               int64             `json:"id"`
	Content          string            `json:"content"`
	OriginalLanguage string            `json:"original_language"`
	SenderID         string            `json:"sender_id"`
	Sender           *SenderSummary    `json:"sender,omitempty"`
	RecipientID      *string           `json:"recipient_id,omitempty"`
	CreatedAt        string            `json:"created_at"`
	Translations     map[string]string `json:"translations"`
	Private          bool              `json:"private"`
	Notice           string            `json:"notice,omitempty"`
}

// AckFrame acknowledges a routed message back to its sender.
type AckFrame struct {
	Type         string        `json:"type"`
	Message      OutboundFrame `json:"message"`
	Delivered    int           `json:"delivered"`
	Undelivered  []string      `json:"undelivered"`
	Untranslated []string      `json:"untranslated"`
}

// ErrorFrame reports a rejected frame to its sender.
type ErrorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SystemFrame carries connection-level notices such as history completion.
type SystemFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
}

// Personalized payloads are rendered per recipient during a broadcast.
// Returning false skips the recipient.
type Personalized interface {
	PayloadFor(userID string) (any, bool)
}

// Error codes carried by ErrorFrame.
const (
	ErrorCodeInvalidFrame = "invalid_frame"
	ErrorCodeValidation   = "validation"
	ErrorCodeRateLimited  = "rate_limited"
	ErrorCodeStorage      = "storage"
	ErrorCodeQueueFull    = "queue_full"
	ErrorCodeInternal     = "internal"
)

// System frame events.
const (
	EventHistoryComplete    = "history_complete"
	EventHistoryUnavailable = "history_unavailable"
)
