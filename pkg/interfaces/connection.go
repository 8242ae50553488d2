package interfaces

import "globalchat/pkg/types"

// Connection represents a live client handle held by the registry
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and routing logic
type Connection interface {
	// WriteJSON sends a JSON payload to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Thread-safety requirement documented in interface
	// to ensure all implementations use single-writer pattern to prevent races
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources. Safe to call twice.
	Close() error

	// Identity returns the authenticated user bound to this connection
	Identity() types.Identity

	// IsAuthenticated returns true once an identity has been bound
	IsAuthenticated() bool
}
