package runtime

import (
	"chat-relay/contract"
	"sync"
)

// Registry is the presence map: one live connection per user.
// It holds no business state, only routing information.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.Connection // map user -> live connection
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.Connection),
	}
}

// Bind makes conn the routable connection of the user.
// The latest bind wins: a previous connection, if any, is returned so the
// caller can log it, but it is not closed and stays alive unroutable.
func (r *Registry) Bind(userID string, conn contract.Connection) (contract.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced := r.sessions[userID]
	r.sessions[userID] = conn
	return previous, replaced
}

func (r *Registry) Lookup(userID string) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.sessions[userID]
	return conn, ok
}

// Unbind removes the user only while conn is still its bound connection.
// A connection that was superseded by a newer bind cannot evict it on close.
func (r *Registry) Unbind(userID string, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// Count is the number of routable users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
