package dspclient

import "sync"

// Registry tracks the live clients of an application, one per logical unit.
// It is the only place that disposes of a client: replacing or removing an entry
// closes the client it held.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Get returns the client registered for unit.
func (r *Registry) Get(unit string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[unit]
	return c, ok
}

// Set registers c for unit, closing the client it replaces.
func (r *Registry) Set(unit string, c *Client) {
	r.mu.Lock()
	previous := r.clients[unit]
	r.clients[unit] = c
	r.mu.Unlock()

	if previous != nil && previous != c {
		_ = previous.Close()
	}
}

// Remove closes and forgets the client of unit. It reports whether one was registered.
func (r *Registry) Remove(unit string) bool {
	r.mu.Lock()
	c, ok := r.clients[unit]
	delete(r.clients, unit)
	r.mu.Unlock()

	if ok {
		_ = c.Close()
	}

	return ok
}

// Clear closes and forgets every client.
func (r *Registry) Clear() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}

// Units returns the registered unit ids.
func (r *Registry) Units() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	units := make([]string, 0, len(r.clients))
	for u := range r.clients {
		units = append(units, u)
	}

	return units
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients)
}
