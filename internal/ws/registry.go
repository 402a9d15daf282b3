package ws

import "sync"

// Registry tracks which sockets are open on one endpoint and which user owns
// each. All state is process-local and rebuilt from zero on restart;
// reconnecting clients simply re-subscribe. A deployment scaled past one
// process would need a shared registry (external pub/sub) which this layer
// deliberately does not provide.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client             // socketID -> client
	users   map[string]map[string]struct{} // userID -> socketIDs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]struct{}),
	}
}

// Register adds a connected socket. Idempotent: re-registering the same
// socket id is a no-op.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; ok {
		return
	}
	r.clients[c.ID] = c
}

// Bind associates a socket with a user after authentication. A user may have
// several concurrent sockets (multi-tab, multi-device). Binding an unknown
// socket id is a no-op so the user index never references a closed socket.
func (r *Registry) Bind(userID, socketID string) {
	if userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[socketID]; !ok {
		return
	}
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[socketID] = struct{}{}
}

// Unregister removes the socket from both the flat registry and the per-user
// index; when the user's last socket goes, the user key goes with it. Returns
// the removed client, or nil if the socket was unknown.
func (r *Registry) Unregister(socketID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[socketID]
	if !ok {
		return nil
	}
	delete(r.clients, socketID)

	if c.UserID != "" {
		if set, ok := r.users[c.UserID]; ok {
			delete(set, socketID)
			if len(set) == 0 {
				delete(r.users, c.UserID)
			}
		}
	}
	return c
}

// IsUserConnected reports whether the user has at least one open socket.
func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// ClientsForUser returns the user's currently open sockets.
func (r *Registry) ClientsForUser(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for socketID := range set {
		if c, ok := r.clients[socketID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// All returns every open socket on this endpoint.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// ConnectionCount returns total open sockets (operational visibility only).
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// UserCount returns how many distinct users have at least one socket.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
