package config

import "errors"

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidDuration = errors.New("invalid duration")
)
