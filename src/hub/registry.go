package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the live connection set. Mutations happen on the hub
// loop; reads may come from any goroutine.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Allocate returns an id that no live connection holds.
func (r *Registry) Allocate() string {
	for {
		id := uuid.NewString()
		r.mu.RLock()
		_, taken := r.clients[id]
		r.mu.RUnlock()
		if !taken {
			return id
		}
	}
}

// Add records c as live. It reports false when the id is already held.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; ok {
		return false
	}
	r.clients[c.ID] = c
	return true
}

// Remove drops c if it is the connection currently registered under its id.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.clients[c.ID]
	if !ok || current != c {
		return false
	}
	delete(r.clients, c.ID)
	return true
}

// Get returns the live client with the given id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Snapshot copies the live set so fan-out can iterate without the lock.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// IDs returns the ids of all live clients.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
