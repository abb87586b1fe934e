package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/irvifa/collaborative-editor/internal/logger"
)

// ErrRetriesExhausted is returned when every connection attempt failed.
var ErrRetriesExhausted = errors.New("max retries exceeded")

// RetryDelay returns the wait before retry number attempt (1-based):
// 2^attempt seconds.
func RetryDelay(attempt uint64) time.Duration {
	if attempt >= 32 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(1<<attempt) * time.Second
}

// doublingBackOff yields RetryDelay(1), RetryDelay(2), ... forever; callers
// bound it with backoff.WithMaxRetries.
type doublingBackOff struct {
	attempt uint64
	delay   func(uint64) time.Duration
}

func (b *doublingBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay(b.attempt)
}

func (b *doublingBackOff) Reset() { b.attempt = 0 }

// Dialer connects to the server, retrying with a doubling delay.
type Dialer struct {
	URL        string
	MaxRetries uint64
	Logger     *slog.Logger

	// Delay overrides RetryDelay; used by tests.
	Delay  func(attempt uint64) time.Duration
	Dialer *websocket.Dialer
}

// Dial connects, retrying up to MaxRetries times after the first attempt.
func (d *Dialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}
	ws := d.Dialer
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	delay := d.Delay
	if delay == nil {
		delay = RetryDelay
	}

	var (
		conn    *websocket.Conn
		lastErr error
	)
	op := func() error {
		c, resp, err := ws.DialContext(ctx, d.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			lastErr = err
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("connection attempt failed, retrying",
			slog.String("url", d.URL),
			slog.Duration("retry_in", wait),
			logger.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&doublingBackOff{delay: delay}, d.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %d attempts to %s: %v", ErrRetriesExhausted, d.MaxRetries+1, d.URL, lastErr)
	}

	log.Info("connected", slog.String("url", d.URL))
	return conn, nil
}
