package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irvifa/collaborative-editor/internal/document"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(context.Background(), path)
	require.NoError(t, err)
	return j, path
}

func TestJournal_Empty(t *testing.T) {
	j, _ := openTestJournal(t)
	defer j.Close()

	_, err := j.Snapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = j.Replay()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestJournal_ReplayAcrossReopen(t *testing.T) {
	j, path := openTestJournal(t)

	require.NoError(t, j.RecordSnapshot(document.Snapshot{Content: "Hello", Version: 1}))
	require.NoError(t, j.RecordEdit(document.InsertAt(5, ", World!", 2)))
	require.NoError(t, j.RecordEdit(document.DeleteAt(0, 1, 3)))
	require.NoError(t, j.Close())

	j, err := OpenJournal(context.Background(), path)
	require.NoError(t, err)
	defer j.Close()

	edits, err := j.Edits()
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, uint64(2), edits[0].Version)

	snap, err := j.Replay()
	require.NoError(t, err)
	assert.Equal(t, document.Snapshot{Content: "ello, World!", Version: 3}, snap)
}

func TestJournal_SnapshotPrunesEdits(t *testing.T) {
	j, _ := openTestJournal(t)
	defer j.Close()

	require.NoError(t, j.RecordEdit(document.InsertAt(0, "a", 1)))
	require.NoError(t, j.RecordEdit(document.InsertAt(1, "b", 2)))
	require.NoError(t, j.RecordEdit(document.InsertAt(2, "c", 3)))
	require.NoError(t, j.RecordSnapshot(document.Snapshot{Content: "ab", Version: 2}))

	edits, err := j.Edits()
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, uint64(3), edits[0].Version)

	snap, err := j.Replay()
	require.NoError(t, err)
	assert.Equal(t, document.Snapshot{Content: "abc", Version: 3}, snap)
}

func TestOpenJournal_HonoursContext(t *testing.T) {
	j, path := openTestJournal(t)
	defer j.Close()

	// The file lock is held by j, so a second open waits until the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := OpenJournal(ctx, path)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = OpenJournal(cancelled, filepath.Join(t.TempDir(), "other.db"))
	assert.ErrorIs(t, err, context.Canceled)
}
