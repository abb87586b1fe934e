package client

import (
	"errors"
	"sync"

	"github.com/irvifa/collaborative-editor/internal/document"
)

// ErrResyncing is returned for local edits typed while the replica waits for
// a fresh snapshot.
var ErrResyncing = errors.New("waiting for a fresh snapshot")

// ApplyResult reports what the replica did with a remote edit.
type ApplyResult int

const (
	// Applied means the edit (and any buffered successors) changed the replica.
	Applied ApplyResult = iota
	// Stale means the edit's version is already reflected locally, or the
	// replica is waiting for a snapshot that will cover it.
	Stale
	// Buffered means the edit arrived ahead of a missing predecessor.
	Buffered
	// Diverged means the edit could not be applied; the replica needs a
	// fresh snapshot.
	Diverged
)

// Replica is the client's copy of the document. Remote edits carry the
// version the server assigned after applying them, so an edit stamped v
// applies on top of local version v-1. Safe for concurrent use.
//
// Local edits are applied before the server has seen them and the server
// never confirms an accepted edit to its sender. A rejection therefore only
// describes the server exactly when it answers the last edit sent; otherwise
// the replica asks for a fresh snapshot and ignores the server until it comes.
type Replica struct {
	mu      sync.Mutex
	state   *document.State
	pending map[uint64]document.Edit

	// confirmed is the highest version taken from the server.
	confirmed uint64
	// lastSent is the base version of the last local edit since the last
	// reset; sent reports whether there is one.
	lastSent  uint64
	sent      bool
	resyncing bool
}

// NewReplica returns an empty replica at version 0.
func NewReplica() *Replica {
	return &Replica{
		state:   document.NewState(),
		pending: make(map[uint64]document.Edit),
	}
}

// Reset replaces the replica with an initial snapshot from the server and
// drops buffered edits the snapshot already covers. It ends a resync.
func (r *Replica) Reset(content string, version uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(content, version)
}

// Reject handles the server's rejection of rejected, which carries a snapshot
// at version. The snapshot is adopted only when rejected is the last edit
// sent and the snapshot is not older than what the server already told the
// replica. Otherwise the replica enters resync and Reject returns true; the
// caller must then request a fresh snapshot.
func (r *Replica) Reject(rejected *document.Edit, content string, version uint64) (needSync bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resyncing {
		return false
	}
	if rejected == nil || !r.sent || rejected.Version != r.lastSent || version < r.confirmed {
		r.resyncing = true
		return true
	}
	r.resetLocked(content, version)
	return false
}

// Resyncing reports whether the replica waits for a fresh snapshot.
func (r *Replica) Resyncing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resyncing
}

func (r *Replica) resetLocked(content string, version uint64) {
	r.state = document.Restore(content, version)
	r.sent = false
	r.resyncing = false
	for v := range r.pending {
		if v <= version {
			delete(r.pending, v)
		}
	}
	r.drainLocked()
	r.confirmed = r.state.Version()
}

// ApplyRemote applies an edit relayed by the server.
func (r *Replica) ApplyRemote(e document.Edit) ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resyncing {
		return Stale
	}

	current := r.state.Version()
	switch {
	case e.Version <= current:
		return Stale
	case e.Version > current+1:
		r.pending[e.Version] = e
		return Buffered
	}

	if !r.applyLocked(e) {
		return Diverged
	}
	r.drainLocked()
	r.confirmed = r.state.Version()
	return Applied
}

// ApplyLocal applies an edit typed by the user at the current version and
// returns the edit to send. The server either accepts it at the same version
// or rejects it with a snapshot that resets the replica.
func (r *Replica) ApplyLocal(cmd Command) (document.Edit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resyncing {
		return document.Edit{}, ErrResyncing
	}

	var e document.Edit
	switch cmd.Kind {
	case CommandInsert:
		e = document.InsertAt(cmd.Position, cmd.Text, r.state.Version())
	case CommandDelete:
		e = document.DeleteAt(cmd.Position, cmd.Count, r.state.Version())
	default:
		return document.Edit{}, ErrInvalidInput
	}

	if err := r.state.ApplyEdit(e); err != nil {
		return document.Edit{}, err
	}
	r.lastSent = e.Version
	r.sent = true
	return e, nil
}

// Snapshot returns the local content and version.
func (r *Replica) Snapshot() document.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return document.Snapshot{Content: r.state.Content(), Version: r.state.Version()}
}

// Pending returns the number of buffered out-of-order edits.
func (r *Replica) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Replica) applyLocked(e document.Edit) bool {
	base := e.Stamped(e.Version - 1)
	return r.state.ApplyEdit(base) == nil
}

func (r *Replica) drainLocked() {
	for {
		next := r.state.Version() + 1
		e, ok := r.pending[next]
		if !ok {
			return
		}
		delete(r.pending, next)
		if !r.applyLocked(e) {
			return
		}
	}
}
