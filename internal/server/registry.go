// Package server tracks live connections and their chosen usernames through
// the Registry type, the single source of truth for who is online.
package server

import "sync"

// Peer is a live connection that can receive encoded events.
// Send must not block; it reports whether the payload was queued.
type Peer interface {
	ID() string
	Send(payload []byte) bool
}

const defaultNamePrefix = "User_"

const defaultNameIDLength = 6

// Registry maps connection ids to live peers and registered usernames.
// The connection table tracks existence and count; the username table is
// the only roster source. Every method is atomic with respect to the others.
type Registry struct {
	mu        sync.RWMutex
	peers     map[string]Peer
	peerOrder []string
	usernames map[string]string
	nameOrder []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		peers:     make(map[string]Peer),
		usernames: make(map[string]string),
	}
}

// Add tracks a new live connection with no username. Adding an id twice
// replaces the stored peer.
func (r *Registry) Add(p Peer) {
	if p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.peers[id]; !exists {
		r.peerOrder = append(r.peerOrder, id)
	}
	r.peers[id] = p
}

// Remove drops the connection and its username. Unknown ids are a no-op.
// It returns the username that was removed, if the connection had registered.
func (r *Registry) Remove(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; exists {
		delete(r.peers, id)
		r.peerOrder = removeID(r.peerOrder, id)
	}

	name, registered := r.usernames[id]
	if registered {
		delete(r.usernames, id)
		r.nameOrder = removeID(r.nameOrder, id)
	}
	return name, registered
}

// SetUsername associates name with the connection, overwriting any earlier
// name. An empty name is replaced by a default derived from the id. The
// stored name is returned. Ids that are not tracked are ignored.
func (r *Registry) SetUsername(id, name string) string {
	if name == "" {
		name = DefaultUsername(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.peers[id]; !live {
		return name
	}
	if _, exists := r.usernames[id]; !exists {
		r.nameOrder = append(r.nameOrder, id)
	}
	r.usernames[id] = name
	return name
}

// Username returns the registered name for id.
func (r *Registry) Username(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.usernames[id]
	return name, ok
}

// Count returns the number of tracked connections, registered or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Usernames returns the roster in first-registration order.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.nameOrder))
	for _, id := range r.nameOrder {
		names = append(names, r.usernames[id])
	}
	return names
}

// Peers returns a snapshot of the tracked connections in accept order.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.peerOrder))
	for _, id := range r.peerOrder {
		peers = append(peers, r.peers[id])
	}
	return peers
}

// Peer looks up a single tracked connection.
func (r *Registry) Peer(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// DefaultUsername derives the display name used when a connection registers
// without one.
func DefaultUsername(id string) string {
	if len(id) > defaultNameIDLength {
		id = id[:defaultNameIDLength]
	}
	return defaultNamePrefix + id
}

func removeID(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
