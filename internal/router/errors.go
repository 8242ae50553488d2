package router

import "errors"

// Router-specific errors
var (
	ErrEmptyContent       = errors.New("content must not be empty")
	ErrContentTooLong     = errors.New("content exceeds maximum length")
	ErrMissingLanguage    = errors.New("original_language is required")
	ErrInvalidLanguage    = errors.New("original_language is not a valid language tag")
	ErrEmptyRecipient     = errors.New("recipient_id must not be empty")
	ErrSelfRecipient      = errors.New("cannot send a private message to yourself")
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrSenderUnidentified = errors.New("sender identity is required")
)
