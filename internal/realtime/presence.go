package realtime

import "sync"

// PresenceRegistry tracks which users currently hold live connections. A user
// may hold several connections at once (multiple tabs); the user is online
// iff their connection set is non-empty. The registry is process-local and
// rebuilt from client re-joins after a restart.
type PresenceRegistry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
	owner  map[string]string
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		byUser: make(map[string]map[string]struct{}),
		owner:  make(map[string]string),
	}
}

// Join registers a connection under a user and reports whether this was the
// user's first connection (the offline-to-online transition). Joining the
// same pair twice is idempotent.
func (p *PresenceRegistry) Join(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		p.byUser[userID] = conns
	}
	first := len(conns) == 0
	conns[connID] = struct{}{}
	p.owner[connID] = userID
	return first
}

// Leave removes a connection and reports its owning user and whether it was
// the user's last connection. Unknown connections are a no-op: transport
// disconnects can race application state.
func (p *PresenceRegistry) Leave(connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.owner[connID]
	if !ok {
		return "", false
	}
	delete(p.owner, connID)

	conns := p.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(p.byUser, userID)
		return userID, true
	}
	return userID, false
}

// IsOnline reports whether the user has at least one live connection.
func (p *PresenceRegistry) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

// ConnectionsFor returns the user's live connection ids, possibly empty.
func (p *PresenceRegistry) ConnectionsFor(userID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.byUser[userID]))
	for id := range p.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

// OnlineUsers returns every user id with at least one live connection.
func (p *PresenceRegistry) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.byUser))
	for id := range p.byUser {
		ids = append(ids, id)
	}
	return ids
}

// UserFor returns the owning user of a connection, if any.
func (p *PresenceRegistry) UserFor(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	userID, ok := p.owner[connID]
	return userID, ok
}
