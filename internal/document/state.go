package document

import (
	"fmt"
	"unicode/utf8"
)

// State is the document text and its version. It is not safe for concurrent
// use; Document wraps it with a lock.
type State struct {
	content string
	version uint64
}

// NewState returns an empty document at version 0.
func NewState() *State {
	return &State{}
}

// Restore returns a state holding content at the given version. Used by
// replicas resyncing from a server snapshot.
func Restore(content string, version uint64) *State {
	return &State{content: content, version: version}
}

// Content returns the current text.
func (s *State) Content() string { return s.content }

// Version returns the current version.
func (s *State) Version() uint64 { return s.version }

// ApplyEdit validates e against the current state and applies it. On success
// the version is incremented by exactly one. On failure nothing changes.
func (s *State) ApplyEdit(e Edit) error {
	if e.Version != s.version {
		return fmt.Errorf("%w: edit version %d, document version %d", ErrVersionMismatch, e.Version, s.version)
	}

	switch {
	case e.Insert != nil:
		if !s.isBoundary(e.Position) {
			return fmt.Errorf("%w: %d", ErrInvalidInsertPosition, e.Position)
		}
		s.content = s.content[:e.Position] + *e.Insert + s.content[e.Position:]
	case e.Delete != nil:
		n := *e.Delete
		// n > len-pos also rules out pos+n overflowing.
		if n < 0 || !s.isBoundary(e.Position) || n > len(s.content)-e.Position {
			return fmt.Errorf("%w: %d+%d", ErrInvalidDeleteRange, e.Position, n)
		}
		end := e.Position + n
		if !s.isBoundary(end) {
			return fmt.Errorf("%w: %d to %d", ErrInvalidDeleteRange, e.Position, end)
		}
		s.content = s.content[:e.Position] + s.content[end:]
	default:
		return ErrEmptyEdit
	}

	s.version++
	return nil
}

// isBoundary reports whether pos is the start of a code point in content or
// its end.
func (s *State) isBoundary(pos int) bool {
	if pos < 0 || pos > len(s.content) {
		return false
	}
	if pos == len(s.content) {
		return true
	}
	return utf8.RuneStart(s.content[pos])
}
