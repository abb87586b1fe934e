// Package feed publishes every applied edit to optional external sinks. The
// feed is write-only: nothing published here is ever read back by the server.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irvifa/collaborative-editor/internal/document"
	"github.com/irvifa/collaborative-editor/internal/logger"
)

// ErrClosed is returned when publishing to a stopped dispatcher.
var ErrClosed = errors.New("feed: dispatcher closed")

// Record describes one applied edit.
type Record struct {
	ID        uuid.UUID     `json:"id"`
	SessionID string        `json:"session_id"`
	Edit      document.Edit `json:"edit"`
	AppliedAt time.Time     `json:"applied_at"`
}

// NewRecord stamps an applied edit for the feed.
func NewRecord(sessionID string, e document.Edit) Record {
	return Record{
		ID:        uuid.New(),
		SessionID: sessionID,
		Edit:      e,
		AppliedAt: time.Now().UTC(),
	}
}

// Sink receives records. Implementations need not be safe for concurrent use;
// the dispatcher calls them from a single goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
	Ping(ctx context.Context) error
	Close() error
}

// Dispatcher queues records and hands them to every sink from a background
// goroutine, so publishing never blocks the edit path.
type Dispatcher struct {
	sinks  []Sink
	queue  chan Record
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher creates a dispatcher with a queue of the given size.
func NewDispatcher(log *slog.Logger, size int, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan Record, size),
		logger: log.With(logger.Component("feed")),
	}
}

// Enabled reports whether any sink is configured.
func (d *Dispatcher) Enabled() bool { return len(d.sinks) > 0 }

// Publish enqueues rec. A full queue drops the record with a warning.
func (d *Dispatcher) Publish(rec Record) error {
	if !d.Enabled() {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrClosed
	}

	select {
	case d.queue <- rec:
		return nil
	default:
		d.logger.Warn("feed queue full, dropping record",
			logger.SessionID(rec.SessionID),
			logger.Version(rec.Edit.Version),
		)
		return nil
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left and
// closes the sinks.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-d.queue:
			d.write(ctx, rec)
		case <-ctx.Done():
			d.stop()
			return d.closeSinks()
		}
	}
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	// No producer can enqueue past this point.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-d.queue:
			d.write(flushCtx, rec)
		default:
			return
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, rec Record) {
	for _, s := range d.sinks {
		if err := s.Write(ctx, rec); err != nil {
			d.logger.Error("feed sink write failed",
				slog.String("sink", s.Name()),
				logger.Version(rec.Edit.Version),
				logger.Error(err),
			)
		}
	}
}

func (d *Dispatcher) closeSinks() error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Checks returns a health check per sink.
func (d *Dispatcher) Checks() map[string]func(context.Context) error {
	out := make(map[string]func(context.Context) error, len(d.sinks))
	for _, s := range d.sinks {
		out[s.Name()] = s.Ping
	}
	return out
}
