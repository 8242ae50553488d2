//go:generate go run go.uber.org/mock/mockgen -source=database.go -destination=../../internal/mocks/mock_database.go -package=mocks

package interfaces

import (
	"context"

	"globalchat/pkg/types"
)

// MessageStore is the persistence contract for messages
// ARCHITECTURAL DISCOVERY: Single interface for message persistence lets the
// SQLite and PostgreSQL backends be swapped by configuration alone
type MessageStore interface {
	// SaveMessage persists a message, assigning ID and CreatedAt
	SaveMessage(ctx context.Context, message *types.Message) error

	// GetMessage loads one message with its sender summary and translations
	GetMessage(ctx context.Context, id int64) (*types.Message, error)

	// ListMessages returns messages visible to viewerID, newest first
	// FUNCTIONAL DISCOVERY: Private messages are filtered at query level so a
	// viewer never receives rows it cannot see
	ListMessages(ctx context.Context, viewerID string, skip, limit int) ([]*types.Message, error)

	// AddTranslation merges one language into the persisted cache.
	// TECHNICAL DISCOVERY: Insert-only merge, an existing key is left intact
	AddTranslation(ctx context.Context, id int64, language, text string) error

	// DeleteMessage removes a message owned by requesterID
	DeleteMessage(ctx context.Context, id int64, requesterID string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// UserStore persists user profiles and preferences
type UserStore interface {
	GetUser(ctx context.Context, id string) (*types.Identity, error)
	UpsertUser(ctx context.Context, user *types.Identity) error
}

// Store is the full persistence surface implemented by each backend
type Store interface {
	MessageStore
	UserStore
}
