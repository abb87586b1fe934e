package document

import "errors"

var (
	// ErrVersionMismatch indicates the edit was computed against a version
	// other than the current one.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrInvalidInsertPosition indicates the insert position is outside the
	// content or inside a multi-byte character.
	ErrInvalidInsertPosition = errors.New("insert position is not a valid UTF-8 boundary")

	// ErrInvalidDeleteRange indicates the delete range is outside the content
	// or splits a multi-byte character.
	ErrInvalidDeleteRange = errors.New("delete range is not on valid UTF-8 boundaries")

	// ErrEmptyEdit indicates an edit with neither insert nor delete.
	ErrEmptyEdit = errors.New("edit has neither insert nor delete")
)

// Reason maps an apply error to its wire reason code. Unknown errors map to
// "internal".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ErrInvalidInsertPosition):
		return "invalid_insert_position"
	case errors.Is(err, ErrInvalidDeleteRange):
		return "invalid_delete_range"
	case errors.Is(err, ErrEmptyEdit):
		return "empty_edit"
	default:
		return "internal"
	}
}
