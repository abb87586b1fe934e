package document

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWith(content string, version uint64) *State {
	return &State{content: content, version: version}
}

func TestApplyEdit_InsertSuccess(t *testing.T) {
	s := NewState()

	err := s.ApplyEdit(InsertAt(0, "Hello", 0))
	require.NoError(t, err)
	assert.Equal(t, "Hello", s.Content())
	assert.Equal(t, uint64(1), s.Version())
}

func TestApplyEdit_DeleteSuccess(t *testing.T) {
	s := stateWith("Hello, World!", 0)

	err := s.ApplyEdit(DeleteAt(6, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, "Hello,", s.Content())
	assert.Equal(t, uint64(1), s.Version())
}

func TestApplyEdit_VersionMismatch(t *testing.T) {
	s := stateWith("Hello", 1)

	err := s.ApplyEdit(InsertAt(5, ", World!", 0))
	require.ErrorIs(t, err, ErrVersionMismatch)
	assert.Equal(t, "Hello", s.Content())
	assert.Equal(t, uint64(1), s.Version())

	// Failing again leaves the same state.
	err = s.ApplyEdit(InsertAt(5, ", World!", 0))
	require.ErrorIs(t, err, ErrVersionMismatch)
	assert.Equal(t, "Hello", s.Content())
	assert.Equal(t, uint64(1), s.Version())
}

func TestApplyEdit_InvalidInsertPosition(t *testing.T) {
	s := stateWith("Hello", 0)

	err := s.ApplyEdit(InsertAt(10, ", World!", 0))
	require.ErrorIs(t, err, ErrInvalidInsertPosition)
	assert.Equal(t, "Hello", s.Content())
	assert.Equal(t, uint64(0), s.Version())
}

func TestApplyEdit_Boundaries(t *testing.T) {
	// "h" + "é" (2 bytes) + "llo" + "世" (3 bytes)
	const content = "héllo世"

	tests := []struct {
		name    string
		edit    Edit
		wantErr error
		want    string
	}{
		{name: "insert at start", edit: InsertAt(0, ">", 0), want: ">héllo世"},
		{name: "insert at end", edit: InsertAt(len(content), "!", 0), want: "héllo世!"},
		{name: "insert after two-byte rune", edit: InsertAt(3, "-", 0), want: "hé-llo世"},
		{name: "insert inside two-byte rune", edit: InsertAt(2, "-", 0), wantErr: ErrInvalidInsertPosition},
		{name: "insert inside three-byte rune", edit: InsertAt(7, "-", 0), wantErr: ErrInvalidInsertPosition},
		{name: "insert negative", edit: InsertAt(-1, "-", 0), wantErr: ErrInvalidInsertPosition},
		{name: "delete whole rune", edit: DeleteAt(1, 2, 0), want: "hllo世"},
		{name: "delete trailing rune", edit: DeleteAt(6, 3, 0), want: "héllo"},
		{name: "delete zero bytes", edit: DeleteAt(3, 0, 0), want: content},
		{name: "delete start splits rune", edit: DeleteAt(2, 1, 0), wantErr: ErrInvalidDeleteRange},
		{name: "delete end splits rune", edit: DeleteAt(1, 1, 0), wantErr: ErrInvalidDeleteRange},
		{name: "delete past end", edit: DeleteAt(6, 4, 0), wantErr: ErrInvalidDeleteRange},
		{name: "delete from past end", edit: DeleteAt(20, 1, 0), wantErr: ErrInvalidDeleteRange},
		{name: "delete negative count", edit: DeleteAt(3, -1, 0), wantErr: ErrInvalidDeleteRange},
		{name: "delete overflowing count", edit: DeleteAt(3, int(^uint(0)>>1), 0), wantErr: ErrInvalidDeleteRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stateWith(content, 0)
			err := s.ApplyEdit(tt.edit)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, content, s.Content())
				assert.Equal(t, uint64(0), s.Version())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Content())
			assert.Equal(t, uint64(1), s.Version())
		})
	}
}

func TestApplyEdit_InsertTakesPrecedence(t *testing.T) {
	s := stateWith("abc", 0)
	e := InsertAt(1, "X", 0)
	n := 100 // would be out of range if it were examined
	e.Delete = &n

	require.NoError(t, s.ApplyEdit(e))
	assert.Equal(t, "aXbc", s.Content())
}

func TestApplyEdit_EmptyEditRejected(t *testing.T) {
	s := stateWith("abc", 4)

	err := s.ApplyEdit(Edit{Position: 0, Version: 4})
	require.ErrorIs(t, err, ErrEmptyEdit)
	assert.Equal(t, "abc", s.Content())
	assert.Equal(t, uint64(4), s.Version())
}

func TestApplyEdit_SequenceComposes(t *testing.T) {
	s := NewState()
	edits := []Edit{
		InsertAt(0, "world", 0),
		InsertAt(0, "hello ", 1),
		InsertAt(11, "!", 2),
		DeleteAt(5, 1, 3),
		InsertAt(5, ", ", 4),
	}

	for _, e := range edits {
		require.NoError(t, s.ApplyEdit(e))
	}
	assert.Equal(t, "hello, world!", s.Content())
	assert.Equal(t, uint64(len(edits)), s.Version())
}

func TestDocument_ApplyStampsVersion(t *testing.T) {
	d := New()

	out, err := d.Apply(InsertAt(0, "Hello", 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.Version)
	require.NotNil(t, out.Insert)
	assert.Equal(t, "Hello", *out.Insert)
	assert.Nil(t, out.Delete)

	snap := d.Snapshot()
	assert.Equal(t, Snapshot{Content: "Hello", Version: 1}, snap)
	assert.Equal(t, 5, d.Len())
}

func TestDocument_ConcurrentSameVersion(t *testing.T) {
	d := New()

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Apply(InsertAt(0, "x", 0))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if assert.ErrorIs(t, err, ErrVersionMismatch) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, rejected)
	assert.Equal(t, Snapshot{Content: "x", Version: 1}, d.Snapshot())
}

func TestReason(t *testing.T) {
	s := stateWith("a", 1)
	assert.Equal(t, "version_mismatch", Reason(s.ApplyEdit(InsertAt(0, "b", 0))))
	assert.Equal(t, "invalid_insert_position", Reason(s.ApplyEdit(InsertAt(5, "b", 1))))
	assert.Equal(t, "invalid_delete_range", Reason(s.ApplyEdit(DeleteAt(0, 5, 1))))
	assert.Equal(t, "empty_edit", Reason(s.ApplyEdit(Edit{Version: 1})))
	assert.Equal(t, "internal", Reason(assert.AnError))
}
