package document

import "sync"

// Snapshot is a consistent view of the document.
type Snapshot struct {
	Content string
	Version uint64
}

// Document is the shared, lock-guarded document state. One instance lives for
// the lifetime of the server.
type Document struct {
	mu    sync.RWMutex
	state *State
}

// New returns an empty document at version 0.
func New() *Document {
	return &Document{state: NewState()}
}

// Apply validates and applies e under the exclusive lock. On success it
// returns the edit stamped with the post-apply version, captured before the
// lock is released.
func (d *Document) Apply(e Edit) (Edit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.state.ApplyEdit(e); err != nil {
		return Edit{}, err
	}
	return e.Stamped(d.state.version), nil
}

// Snapshot returns the current content and version.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{Content: d.state.content, Version: d.state.version}
}

// Join calls fn with the current snapshot while holding the read lock, so no
// edit can be applied until fn returns. fn must not block and must not call
// back into the document.
func (d *Document) Join(fn func(Snapshot)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(Snapshot{Content: d.state.content, Version: d.state.version})
}

// Version returns the current version.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.version
}

// Len returns the content length in bytes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.state.content)
}
