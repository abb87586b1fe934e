package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irvifa/collaborative-editor/internal/document"
	"github.com/irvifa/collaborative-editor/internal/logger"
	"github.com/irvifa/collaborative-editor/internal/protocol"
)

var (
	// ErrConnectionLost is returned when the server connection ends while the
	// user is still editing.
	ErrConnectionLost = errors.New("connection lost")

	// ErrDiverged is returned when a relayed edit cannot be applied to the
	// replica; reconnecting fetches a fresh snapshot.
	ErrDiverged = errors.New("replica diverged from server")
)

const prompt = "Enter an edit (position,text | position,delete<count> | :show | :quit): "

// ReadLines feeds lines from r into the returned channel until r is
// exhausted. One reader serves every session of the process so that a
// reconnect never loses a line to an abandoned goroutine.
func ReadLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// Session drives one connection: it applies server messages to the replica
// and sends the user's edits.
type Session struct {
	conn    *websocket.Conn
	replica *Replica
	journal *Journal
	logger  *slog.Logger

	// writeMu serializes data frames from the input loop and the receiver. It
	// is held from a replica decision until the frame it implies is written,
	// so the wire order matches what the replica believes was sent.
	writeMu sync.Mutex

	outMu sync.Mutex
	out   io.Writer
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithJournal records every snapshot and edit received.
func WithJournal(j *Journal) SessionOption {
	return func(s *Session) { s.journal = j }
}

// WithReplica shares a replica across sessions.
func WithReplica(r *Replica) SessionOption {
	return func(s *Session) { s.replica = r }
}

// NewSession wraps an established connection.
func NewSession(conn *websocket.Conn, out io.Writer, log *slog.Logger, opts ...SessionOption) *Session {
	if log == nil {
		log = logger.Discard()
	}
	s := &Session{
		conn:   conn,
		out:    out,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.replica == nil {
		s.replica = NewReplica()
	}
	return s
}

// Replica returns the session's replica.
func (s *Session) Replica() *Replica { return s.replica }

// Run processes server messages and input lines until the user quits (nil),
// the input ends (nil), ctx is cancelled, or the connection fails.
func (s *Session) Run(ctx context.Context, lines <-chan string) error {
	defer s.conn.Close()

	recvErr := make(chan error, 1)
	go func() { recvErr <- s.receive() }()

	s.printf("%s", prompt)
	for {
		select {
		case err := <-recvErr:
			return err
		case <-ctx.Done():
			s.closeNormally()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				s.closeNormally()
				return nil
			}
			quit, err := s.handleLine(line)
			if err != nil {
				return err
			}
			if quit {
				s.closeNormally()
				return nil
			}
			s.printf("%s", prompt)
		}
	}
}

// handleLine acts on one input line. Parse and local validation errors are
// reported to the user and never end the session.
func (s *Session) handleLine(line string) (quit bool, err error) {
	cmd, err := ParseInput(line)
	if err != nil {
		s.printf("%v\n", err)
		return false, nil
	}

	switch cmd.Kind {
	case CommandQuit:
		return true, nil
	case CommandShow:
		s.printDocument(s.replica.Snapshot())
		return false, nil
	}

	s.writeMu.Lock()
	e, err := s.replica.ApplyLocal(cmd)
	if err != nil {
		s.writeMu.Unlock()
		s.logger.Warn("edit not sent", logger.Error(err))
		s.printf("edit rejected locally: %v\n", err)
		return false, nil
	}
	err = s.writeLocked(protocol.EncodeEdit(e))
	s.writeMu.Unlock()
	if err != nil {
		return false, fmt.Errorf("send edit: %w", err)
	}

	// Journaled like a relayed edit, under the version it produced.
	s.record(func(j *Journal) error { return j.RecordEdit(e.Stamped(e.Version + 1)) })
	s.printDocument(s.replica.Snapshot())
	return false, nil
}

func (s *Session) receive() error {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		if mt != websocket.TextMessage {
			s.logger.Warn("received non-text message")
			continue
		}

		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("failed to parse received message", logger.Error(err))
			continue
		}
		if err := s.handleMessage(env); err != nil {
			return err
		}
	}
}

func (s *Session) handleMessage(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeInitial:
		initial := env.Initial()
		s.replica.Reset(initial.Content, initial.Version)
		s.record(func(j *Journal) error { return j.RecordSnapshot(s.replica.Snapshot()) })
		s.printf("\n")
		s.printDocument(s.replica.Snapshot())

	case protocol.TypeEdit:
		e := *env.Edit
		switch s.replica.ApplyRemote(e) {
		case Stale:
			s.logger.Debug("ignoring stale edit", logger.Version(e.Version))
			return nil
		case Buffered:
			s.logger.Debug("buffered out-of-order edit", logger.Version(e.Version))
		case Diverged:
			return fmt.Errorf("%w at version %d", ErrDiverged, e.Version)
		}
		s.record(func(j *Journal) error { return j.RecordEdit(e) })
		s.logger.Info("received edit", logger.Version(e.Version))
		s.printf("\n")
		s.printDocument(s.replica.Snapshot())

	case protocol.TypeReject:
		rej := env.Reject()
		s.logger.Warn("server rejected edit",
			slog.String("reason", rej.Reason),
			slog.String("message", rej.Message),
		)
		if s.replica.Resyncing() {
			return nil
		}
		needSync, err := s.reject(rej)
		if err != nil {
			return fmt.Errorf("request sync: %w", err)
		}
		if needSync {
			s.printf("\nedit rejected (%s), resyncing\n", rej.Reason)
			return nil
		}
		s.record(func(j *Journal) error { return j.RecordSnapshot(s.replica.Snapshot()) })
		s.printf("\nedit rejected (%s), resynced\n", rej.Reason)
		s.printDocument(s.replica.Snapshot())
	}
	return nil
}

// reject hands a rejection to the replica and, when the snapshot it carries
// cannot be trusted, asks the server for a fresh one. Every edit sent before
// the request is settled by the time the answer arrives.
func (s *Session) reject(rej protocol.Reject) (needSync bool, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.replica.Reject(rej.Edit, rej.Content, rej.Version) {
		return false, nil
	}
	return true, s.writeLocked(protocol.EncodeSync())
}

// writeLocked writes an encoded frame; the caller holds writeMu.
func (s *Session) writeLocked(data []byte, err error) error {
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (s *Session) record(fn func(*Journal) error) {
	if s.journal == nil {
		return
	}
	if err := fn(s.journal); err != nil {
		s.logger.Error("journal write failed", logger.Error(err))
	}
}

func (s *Session) closeNormally() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Session) printDocument(snap document.Snapshot) {
	s.printf("[v%d] %q\n", snap.Version, snap.Content)
}

func (s *Session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
