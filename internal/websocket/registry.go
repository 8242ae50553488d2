package websocket

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

// Registry tracks the single live connection of every connected user
// ARCHITECTURAL DISCOVERY: Pure connection management without routing logic
// maintains clean separation between connection tracking and message fan-out
type Registry struct {
	mu          sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	connections map[string]interfaces.Connection
	log         *slog.Logger
}

// NewRegistry creates a new connection registry
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		log:         log,
	}
}

// Connect registers conn for userID. A previous connection for the same user
// is closed before Connect returns, so a user never holds two live sockets.
func (r *Registry) Connect(userID string, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}
	if conn.Identity().ID != userID {
		return ErrIdentityMismatch
	}

	r.mu.Lock()
	previous, exists := r.connections[userID]
	r.connections[userID] = conn
	r.mu.Unlock()

	// FUNCTIONAL DISCOVERY: The swap happens under the lock but the close does
	// not, so a slow socket close never stalls other registry operations
	if exists && previous != conn {
		if err := previous.Close(); err != nil {
			r.log.Debug("Closing replaced connection failed", "user_id", userID, "error", err)
		}
		r.log.Info("Replaced existing connection", "user_id", userID)
	}
	return nil
}

// Disconnect removes and closes the connection of userID, if any.
func (r *Registry) Disconnect(userID string) {
	r.mu.Lock()
	conn, exists := r.connections[userID]
	delete(r.connections, userID)
	r.mu.Unlock()

	if exists {
		_ = conn.Close()
	}
}

// Release removes conn only if it is still the registered handle for its user.
// It reports whether an entry was removed.
// RACE CONDITION FIX: an old connection's cleanup never evicts its replacement
func (r *Registry) Release(conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}
	userID := conn.Identity().ID

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[userID]
	if !exists || registered != conn {
		return false
	}
	delete(r.connections, userID)
	return true
}

// Lookup returns the live connection of userID.
func (r *Registry) Lookup(userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[userID]
	return conn, exists
}

// IsConnected reports whether userID has a live connection.
func (r *Registry) IsConnected(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Count returns the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Snapshot returns the identities of all connected users ordered by ID.
func (r *Registry) Snapshot() []types.Identity {
	r.mu.RLock()
	identities := make([]types.Identity, 0, len(r.connections))
	for _, conn := range r.connections {
		identities = append(identities, conn.Identity())
	}
	r.mu.RUnlock()

	sort.Slice(identities, func(i, j int) bool { return identities[i].ID < identities[j].ID })
	return identities
}

// Send delivers payload to userID's connection.
func (r *Registry) Send(userID string, payload any) error {
	conn, ok := r.Lookup(userID)
	if !ok {
		return &types.DeliveryError{UserID: userID, Reason: types.ErrNotConnected}
	}
	return r.deliver(userID, conn, payload)
}

// BroadcastExcept delivers payload to every connected user except senderID.
// Personalized payloads are rendered per recipient and may skip users.
// Per-recipient failures are collected, never returned as a whole.
func (r *Registry) BroadcastExcept(senderID string, payload any) []types.DeliveryResult {
	type target struct {
		userID string
		conn   interfaces.Connection
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.connections))
	for userID, conn := range r.connections {
		if userID != senderID {
			targets = append(targets, target{userID: userID, conn: conn})
		}
	}
	r.mu.RUnlock()
	sort.Slice(targets, func(i, j int) bool { return targets[i].userID < targets[j].userID })

	personalized, _ := payload.(types.Personalized)
	results := make([]types.DeliveryResult, len(targets))
	skipped := make([]bool, len(targets))

	// TECHNICAL DISCOVERY: Sends run concurrently so one stalled socket costs
	// at most one write timeout for the whole broadcast
	var wg sync.WaitGroup
	for i, t := range targets {
		body := payload
		if personalized != nil {
			var ok bool
			if body, ok = personalized.PayloadFor(t.userID); !ok {
				skipped[i] = true
				continue
			}
		}
		wg.Add(1)
		go func(i int, t target, body any) {
			defer wg.Done()
			results[i] = types.DeliveryResult{UserID: t.userID, Err: r.deliver(t.userID, t.conn, body)}
		}(i, t, body)
	}
	wg.Wait()

	out := make([]types.DeliveryResult, 0, len(results))
	for i, res := range results {
		if !skipped[i] {
			out = append(out, res)
		}
	}
	return out
}

// deliver writes to conn and evicts it on transport failure.
func (r *Registry) deliver(userID string, conn interfaces.Connection, payload any) error {
	err := conn.WriteJSON(payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidJSON) {
		return &types.DeliveryError{UserID: userID, Reason: types.ErrTransportFailure, Err: err}
	}

	r.log.Warn("Delivery failed, dropping connection", "user_id", userID, "error", err)
	if r.Release(conn) {
		_ = conn.Close()
	}
	return &types.DeliveryError{UserID: userID, Reason: types.ErrTransportFailure, Err: err}
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"total_connections": len(r.connections),
	}
}
