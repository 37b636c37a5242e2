package presence

import (
	"sync"
	"time"
)

// Connection is the slice of a live session the registry needs: identity for
// the same-connection guard, send for broadcasts, close for superseding.
type Connection interface {
	ID() string
	TrySend(payload []byte) bool
	Close(code int, reason string)
}

type entry struct {
	conn        Connection
	connectedAt time.Time
}

// Registry maps each online user to their single live connection. A second
// connection from the same user supersedes the first; the old one is closed
// and returned to the caller.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]entry)}
}

// Register tracks a connection for a user and returns the superseded one, if
// any. The caller is responsible for closing the returned connection.
func (r *Registry) Register(userID string, conn Connection, connectedAt time.Time) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, had := r.conns[userID]
	r.conns[userID] = entry{conn: conn, connectedAt: connectedAt}
	if had && old.conn.ID() != conn.ID() {
		return old.conn
	}
	return nil
}

// Remove untracks a user's connection, but only if it is still the same
// connection. A late removal from a superseded connection must not evict the
// replacement.
func (r *Registry) Remove(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[userID]
	if !ok || current.conn.ID() != connID {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) Get(userID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Registry) ConnectedAt(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.connectedAt, true
}

// Online returns a snapshot of every online user id.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		out = append(out, userID)
	}
	return out
}

// Broadcast sends a payload to every connection except the excluded user.
func (r *Registry) Broadcast(payload []byte, excludeUserID string) {
	r.mu.RLock()
	conns := make([]Connection, 0, len(r.conns))
	for userID, e := range r.conns {
		if userID != excludeUserID {
			conns = append(conns, e.conn)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.TrySend(payload)
	}
}
