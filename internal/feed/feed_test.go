package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irvifa/collaborative-editor/internal/document"
)

type memorySink struct {
	mu      sync.Mutex
	records []Record
	failing bool
	closed  bool
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Ping(context.Context) error { return nil }

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) snapshot() ([]Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...), s.closed
}

func TestDispatcher_DeliversInOrderAndFlushes(t *testing.T) {
	sink := &memorySink{}
	failing := &memorySink{failing: true}
	d := NewDispatcher(nil, 16, sink, failing)

	for v := uint64(1); v <= 5; v++ {
		require.NoError(t, d.Publish(NewRecord("s1", document.InsertAt(0, "x", v))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		recs, _ := sink.snapshot()
		return len(recs) == 5
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	recs, closed := sink.snapshot()
	assert.True(t, closed)
	for i, rec := range recs {
		assert.Equal(t, uint64(i+1), rec.Edit.Version)
		assert.Equal(t, "s1", rec.SessionID)
	}
	_, failingClosed := failing.snapshot()
	assert.True(t, failingClosed)

	assert.ErrorIs(t, d.Publish(NewRecord("s1", document.InsertAt(0, "x", 6))), ErrClosed)
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(nil, 1, sink)

	require.NoError(t, d.Publish(NewRecord("s", document.InsertAt(0, "a", 1))))
	require.NoError(t, d.Publish(NewRecord("s", document.InsertAt(0, "b", 2))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	recs, _ := sink.snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].Edit.Version)
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := NewDispatcher(nil, 4)
	assert.False(t, d.Enabled())
	assert.NoError(t, d.Publish(NewRecord("s", document.InsertAt(0, "a", 1))))
	assert.Empty(t, d.Checks())
}
