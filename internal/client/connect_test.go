package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryDelay(1))
	assert.Equal(t, 4*time.Second, RetryDelay(2))
	assert.Equal(t, 32*time.Second, RetryDelay(5))
}

func TestDoublingBackOff_BoundedByMaxRetries(t *testing.T) {
	b := &doublingBackOff{delay: RetryDelay}

	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, 2*time.Second, b.NextBackOff())
}

func TestDialer_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := &Dialer{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxRetries: 3,
		Delay:      func(uint64) time.Duration { return time.Millisecond },
	}
	_, err := d.Dial(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(4), attempts.Load())
}

func TestDialer_SucceedsAfterFailures(t *testing.T) {
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	d := &Dialer{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxRetries: 5,
		Delay:      func(uint64) time.Duration { return time.Millisecond },
	}
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDialer_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Dialer{URL: "ws://127.0.0.1:1/ws", MaxRetries: 5}
	_, err := d.Dial(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
