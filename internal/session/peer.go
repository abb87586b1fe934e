package session

import (
	"errors"
	"sync"
)

var (
	// ErrPeerClosed indicates the peer's handler has stopped.
	ErrPeerClosed = errors.New("peer closed")

	// ErrPeerLagging indicates the peer's outbound queue is full.
	ErrPeerLagging = errors.New("peer outbound queue full")
)

// Peer is one connected session: an identity plus a bounded outbound queue
// drained by the session's own writer.
type Peer struct {
	id         string
	remoteAddr string
	send       chan []byte

	closeOnce sync.Once
	done      chan struct{}
	lagOnce   sync.Once
	lagging   chan struct{}
}

// NewPeer creates a peer whose queue holds up to buffer messages.
func NewPeer(id, remoteAddr string, buffer int) *Peer {
	if buffer < 1 {
		buffer = 1
	}
	return &Peer{
		id:         id,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		lagging:    make(chan struct{}),
	}
}

// ID returns the connection identity.
func (p *Peer) ID() string { return p.id }

// RemoteAddr returns the address the connection came from.
func (p *Peer) RemoteAddr() string { return p.remoteAddr }

// Send enqueues msg without blocking. When the queue is full the peer is
// flagged as lagging and ErrPeerLagging is returned; the owner is expected to
// end the connection.
func (p *Peer) Send(msg []byte) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.send <- msg:
		return nil
	default:
		p.lagOnce.Do(func() { close(p.lagging) })
		return ErrPeerLagging
	}
}

// Outbound is the queue drained by the session writer.
func (p *Peer) Outbound() <-chan []byte { return p.send }

// Lagging is closed once a send found the queue full.
func (p *Peer) Lagging() <-chan struct{} { return p.lagging }

// Done is closed when the peer is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close marks the peer as gone. Later sends fail with ErrPeerClosed. The
// outbound channel itself is never closed so concurrent senders cannot panic.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
