package users

import "errors"

var (
	ErrInvalidUserID   = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidProfile  = errors.New("invalid user profile")
	ErrInvalidLanguage = errors.New("invalid preferred language")
)
