// Package session tracks connected peers and fans messages out to them.
package session

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/irvifa/collaborative-editor/internal/logger"
)

// Registry maps connection identities to peers. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	logger *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger discards output.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	return &Registry{
		peers:  make(map[string]*Peer),
		logger: log,
	}
}

// Register inserts p, replacing any stale entry under the same id.
func (r *Registry) Register(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID()] = p
}

// Deregister removes id if present.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Get returns the peer registered under id.
func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// BroadcastExcept sends msg to every peer other than senderID and returns the
// number of peers that accepted it. The peer set is copied under the read lock
// and the sends happen after it is released. A failed send is logged and does
// not stop delivery to the others.
func (r *Registry) BroadcastExcept(senderID string, msg []byte) int {
	r.mu.RLock()
	targets := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if id != senderID {
			targets = append(targets, p)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, p := range targets {
		if err := p.Send(msg); err != nil {
			r.logger.Warn("failed to send message to peer",
				logger.SessionID(p.ID()),
				logger.RemoteAddr(p.RemoteAddr()),
				logger.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}
