//go:generate go run go.uber.org/mock/mockgen -source=router.go -destination=../../internal/mocks/mock_router.go -package=mocks

package interfaces

import (
	"context"

	"globalchat/pkg/types"
)

// MessageRouter turns an inbound frame into a persisted, delivered message
// ARCHITECTURAL DISCOVERY: Routing logic abstracted from transport so the
// websocket hub and the HTTP API share one pipeline
type MessageRouter interface {
	RouteMessage(ctx context.Context, sender types.Identity, frame types.InboundFrame) (*types.RouteOutcome, error)
}

// IdentityResolver resolves a bearer token to a user identity
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (types.Identity, error)
}

// UserDirectory looks up user preferences for recipients who are not connected
type UserDirectory interface {
	LookupUser(ctx context.Context, id string) (types.Identity, error)
}
