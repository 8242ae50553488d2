package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrStoreClosed = errors.New("store is closed")
)
