package ws

import "sync"

// Registry tracks live clients and the identity bound to each. Every client
// in the identity map is also in the live set; anonymous clients only
// appear in the latter.
type Registry struct {
	mu         sync.Mutex
	clients    map[string]*Client
	identities map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:    make(map[string]*Client),
		identities: make(map[string]*Client),
	}
}

// Add inserts an unidentified client and returns its handle.
func (r *Registry) Add(c *Client) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
	return c.ID()
}

// AssignIdentity binds identity to the client behind handle. A previous
// binding for the same identity is replaced without closing its client,
// which stays live but can no longer be addressed by identity. Unknown
// handles are ignored.
func (r *Registry) AssignIdentity(handle, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[handle]
	if !ok {
		return nil
	}
	if err := c.setIdentity(identity); err != nil {
		return err
	}
	r.identities[identity] = c
	return nil
}

// Remove drops the client behind handle. It reports whether anything was
// removed; removing twice is a no-op.
func (r *Registry) Remove(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[handle]
	if !ok {
		return false
	}
	delete(r.clients, handle)

	// Only drop the binding if it still points at this client; a displaced
	// client must not unbind its replacement.
	if id := c.Identity(); id != "" && r.identities[id] == c {
		delete(r.identities, id)
	}
	return true
}

// Lookup returns the client currently bound to identity.
func (r *Registry) Lookup(identity string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.identities[identity]
	return c, ok
}

// Get returns the client behind handle.
func (r *Registry) Get(handle string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[handle]
	return c, ok
}

// AllExcept returns a point-in-time copy of every client but handle.
func (r *Registry) AllExcept(handle string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		if id != handle {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot returns a point-in-time copy of every live client.
func (r *Registry) Snapshot() []*Client {
	return r.AllExcept("")
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Identified returns the number of bound identities.
func (r *Registry) Identified() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}
