package client

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/irvifa/collaborative-editor/internal/document"
)

var (
	bucketSnapshot = []byte("snapshot")
	bucketEdits    = []byte("edits")

	keyContent = []byte("content")
	keyVersion = []byte("version")
)

// lockTimeout bounds the wait for the journal file lock when ctx carries no
// deadline.
const lockTimeout = time.Second

// ErrNoSnapshot is returned when the journal has never recorded a snapshot.
var ErrNoSnapshot = errors.New("journal: no snapshot recorded")

// Journal records what the client last saw from the server: the latest
// snapshot plus every edit received after it, keyed by version.
type Journal struct {
	db *bbolt.DB
}

// OpenJournal opens or creates the journal at path. Waiting for another
// process holding the file lock ends at the ctx deadline.
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	opts := &bbolt.Options{Timeout: lockTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		opts.Timeout = time.Until(deadline)
		if opts.Timeout <= 0 {
			return nil, fmt.Errorf("journal: open %s: %w", path, context.DeadlineExceeded)
		}
	}

	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSnapshot, bucketEdits} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordSnapshot stores a full snapshot and clears the edits it supersedes.
func (j *Journal) RecordSnapshot(snap document.Snapshot) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSnapshot)
		if err := b.Put(keyContent, []byte(snap.Content)); err != nil {
			return err
		}
		if err := b.Put(keyVersion, versionKey(snap.Version)); err != nil {
			return err
		}

		edits := tx.Bucket(bucketEdits)
		var stale [][]byte
		c := edits.Cursor()
		for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= snap.Version; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := edits.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordEdit stores an edit received from the server under its version.
func (j *Journal) RecordEdit(e document.Edit) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode edit: %w", err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEdits).Put(versionKey(e.Version), data)
	})
}

// Snapshot returns the last recorded snapshot.
func (j *Journal) Snapshot() (document.Snapshot, error) {
	var snap document.Snapshot
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSnapshot)
		v := b.Get(keyVersion)
		if v == nil {
			return ErrNoSnapshot
		}
		snap.Version = binary.BigEndian.Uint64(v)
		snap.Content = string(b.Get(keyContent))
		return nil
	})
	return snap, err
}

// Edits returns the recorded edits in version order.
func (j *Journal) Edits() ([]document.Edit, error) {
	var out []document.Edit
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEdits).ForEach(func(_, v []byte) error {
			var e document.Edit
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("journal: decode edit: %w", err)
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Replay rebuilds the last known document from the snapshot and edits.
func (j *Journal) Replay() (document.Snapshot, error) {
	snap, err := j.Snapshot()
	if err != nil {
		return document.Snapshot{}, err
	}
	edits, err := j.Edits()
	if err != nil {
		return document.Snapshot{}, err
	}

	r := NewReplica()
	r.Reset(snap.Content, snap.Version)
	for _, e := range edits {
		r.ApplyRemote(e)
	}
	return r.Snapshot(), nil
}

func versionKey(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
