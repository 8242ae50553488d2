package types

import (
	"errors"
	"fmt"
)

// ARCHITECTURAL DISCOVERY: Sentinels are matched with errors.Is across package
// boundaries; the structured types below carry detail and unwrap to them.
var (
	ErrValidation        = errors.New("validation failed")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrStorage           = errors.New("storage failure")
	ErrForbidden         = errors.New("forbidden")
	ErrMessageNotFound   = errors.New("message not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrNotConnected      = errors.New("recipient not connected")
	ErrTransportFailure  = errors.New("transport failure")
	ErrTranslationFailed = errors.New("translation failed")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// ValidationError describes why an inbound message was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError is a shorthand used by the router and HTTP layer.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TranslationError wraps any failure of the translation backend.
type TranslationError struct {
	Language string
	Err      error
}

func (e *TranslationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("translation to %q failed", e.Language)
	}
	return fmt.Sprintf("translation to %q failed: %v", e.Language, e.Err)
}

func (e *TranslationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTranslationFailed}
	}
	return []error{ErrTranslationFailed, e.Err}
}

// DeliveryError is returned by registry sends. Reason is ErrNotConnected or
// ErrTransportFailure.
type DeliveryError struct {
	UserID string
	Reason error
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("deliver to %s: %v", e.UserID, e.Reason)
	}
	return fmt.Sprintf("deliver to %s: %v: %v", e.UserID, e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// DeliveryResult is the per-recipient outcome of a fan-out.
type DeliveryResult struct {
	UserID string
	Err    error
}

// Delivered reports whether the payload reached the recipient's connection.
func (r DeliveryResult) Delivered() bool { return r.Err == nil }
