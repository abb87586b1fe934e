package document

// Edit is a single positional operation against the document. Exactly one of
// Insert or Delete is set by a conforming sender; if both are set Insert wins.
type Edit struct {
	// Position is a byte offset into the current content.
	Position int `json:"position"`
	// Insert is the text to insert at Position.
	Insert *string `json:"insert"`
	// Delete is the number of bytes to remove starting at Position.
	Delete *int `json:"delete"`
	// Version is the document version the edit was computed against.
	Version uint64 `json:"version"`
}

// InsertAt builds an insert edit.
func InsertAt(pos int, text string, version uint64) Edit {
	return Edit{Position: pos, Insert: &text, Version: version}
}

// DeleteAt builds a delete edit removing n bytes starting at pos.
func DeleteAt(pos, n int, version uint64) Edit {
	return Edit{Position: pos, Delete: &n, Version: version}
}

// IsInsert reports whether the edit inserts text.
func (e Edit) IsInsert() bool { return e.Insert != nil }

// IsDelete reports whether the edit removes text. Insert takes precedence.
func (e Edit) IsDelete() bool { return e.Insert == nil && e.Delete != nil }

// IsEmpty reports whether neither insert nor delete is set.
func (e Edit) IsEmpty() bool { return e.Insert == nil && e.Delete == nil }

// Stamped returns a copy of e carrying the given version. The pointers are
// cloned so the copy shares nothing with the original.
func (e Edit) Stamped(version uint64) Edit {
	out := Edit{Position: e.Position, Version: version}
	if e.Insert != nil {
		s := *e.Insert
		out.Insert = &s
	}
	if e.Delete != nil {
		n := *e.Delete
		out.Delete = &n
	}
	return out
}
