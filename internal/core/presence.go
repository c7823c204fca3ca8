package core

// SessionRegistry maps authenticated user identities to their live
// connections. It is owned by the hub goroutine and needs no locking.
type SessionRegistry struct {
	byUser map[int64]map[*Client]struct{}
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byUser: make(map[int64]map[*Client]struct{})}
}

// Register records a connection. Returns true if it is the user's first
// active connection, i.e. the user just came online.
func (r *SessionRegistry) Register(c *Client) bool {
	conns, ok := r.byUser[c.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		r.byUser[c.UserID] = conns
	}
	conns[c] = struct{}{}
	return len(conns) == 1
}

// Unregister removes a connection. Returns true if the user has no
// connections left, i.e. the user just went offline.
func (r *SessionRegistry) Unregister(c *Client) bool {
	conns, ok := r.byUser[c.UserID]
	if !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (r *SessionRegistry) IsOnline(userID int64) bool {
	return len(r.byUser[userID]) > 0
}

// ClientsFor returns all live connections for a user.
func (r *SessionRegistry) ClientsFor(userID int64) []*Client {
	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}
