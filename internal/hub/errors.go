package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrSenderUnidentified = errors.New("sender identity is required")
	ErrMessageChannelFull = errors.New("message channel is full")
)
