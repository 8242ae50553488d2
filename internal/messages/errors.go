package messages

import "errors"

var (
	ErrInvalidID       = errors.New("message id must be positive")
	ErrInvalidLanguage = errors.New("target language is not a valid language tag")
)
