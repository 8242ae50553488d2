package translation

import "errors"

var (
	ErrEmptyTarget      = errors.New("target language is empty")
	ErrEmptyResult      = errors.New("translation backend returned an empty result")
	ErrDisabled         = errors.New("translation backend is disabled")
	ErrUnexpectedStatus = errors.New("unexpected status from translation backend")
)
