package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/irvifa/collaborative-editor/internal/document"
	"github.com/irvifa/collaborative-editor/internal/feed"
	"github.com/irvifa/collaborative-editor/internal/logger"
	"github.com/irvifa/collaborative-editor/internal/protocol"
	"github.com/irvifa/collaborative-editor/internal/session"
)

// connHandler runs one websocket session: the initial sync, the read loop
// applying inbound edits and the write loop draining the peer queue.
type connHandler struct {
	s      *Server
	conn   *websocket.Conn
	peer   *session.Peer
	logger *slog.Logger
}

func newConnHandler(s *Server, conn *websocket.Conn, remoteAddr string) *connHandler {
	id := uuid.NewString()
	return &connHandler{
		s:      s,
		conn:   conn,
		peer:   session.NewPeer(id, remoteAddr, s.cfg.PeerBuffer),
		logger: s.logger.With(logger.SessionID(id), logger.RemoteAddr(remoteAddr)),
	}
}

// run blocks until the session ends. The session is registered only after
// its initial snapshot is queued and is deregistered on every exit path.
func (h *connHandler) run() {
	start := time.Now()
	defer h.conn.Close()

	if err := h.join(); err != nil {
		h.logger.Error("failed to start session", logger.Error(err))
		return
	}
	defer func() {
		h.s.registry.Deregister(h.peer.ID())
		h.peer.Close()
		h.logger.Info("session closed", logger.Elapsed(start))
	}()
	h.logger.Info("session opened", slog.Int("sessions", h.s.registry.Len()))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop()
	}()

	h.writeLoop(readDone)

	// Unblocks a reader still waiting on the socket.
	h.conn.Close()
	<-readDone
}

// join queues the initial snapshot and registers the peer while the document
// is read-locked, so every edit applied afterwards reaches the peer after the
// snapshot and none applied before is missing from it.
func (h *connHandler) join() error {
	var err error
	h.s.doc.Join(func(snap document.Snapshot) {
		var msg []byte
		msg, err = protocol.EncodeInitial(snap)
		if err != nil {
			return
		}
		if err = h.peer.Send(msg); err != nil {
			return
		}
		h.s.registry.Register(h.peer)
	})
	return err
}

func (h *connHandler) readLoop() {
	if h.s.cfg.ReadLimit > 0 {
		h.conn.SetReadLimit(h.s.cfg.ReadLimit)
	}
	if wait := h.pongWait(); wait > 0 {
		_ = h.conn.SetReadDeadline(time.Now().Add(wait))
		h.conn.SetPongHandler(func(string) error {
			return h.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		mt, data, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("read failed", logger.Error(err))
			} else {
				h.logger.Debug("client disconnected", logger.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			h.logger.Warn("ignoring non-text frame", slog.Int("frame_type", mt))
			continue
		}
		h.handleFrame(data)
	}
}

func (h *connHandler) handleFrame(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		h.logger.Warn("ignoring message", logger.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeEdit:
		h.applyEdit(*env.Edit)
	case protocol.TypeSync:
		h.resync()
	default:
		h.logger.Warn("ignoring message from client", slog.String("type", env.Type))
	}
}

// applyEdit applies e and relays the result to every other session. The
// broadcast happens after the document lock is released and carries the
// version captured when e was applied.
func (h *connHandler) applyEdit(e document.Edit) {
	applied, err := h.s.doc.Apply(e)
	if err != nil {
		h.logger.Warn("rejected edit",
			slog.String("reason", document.Reason(err)),
			logger.Error(err),
		)
		h.reject(e, err)
		return
	}

	msg, err := protocol.EncodeEdit(applied)
	if err != nil {
		h.logger.Error("failed to encode edit", logger.Version(applied.Version), logger.Error(err))
		return
	}
	delivered := h.s.registry.BroadcastExcept(h.peer.ID(), msg)

	if err := h.s.feed.Publish(feed.NewRecord(h.peer.ID(), applied)); err != nil && !errors.Is(err, feed.ErrClosed) {
		h.logger.Warn("failed to publish edit", logger.Error(err))
	}

	h.logger.Debug("applied edit", logger.Version(applied.Version), slog.Int("delivered", delivered))
}

// reject tells the sender e was dropped and hands it a fresh snapshot. The
// snapshot is queued under the document read lock, so no broadcast of a
// later edit can be queued ahead of it.
func (h *connHandler) reject(e document.Edit, cause error) {
	h.s.doc.Join(func(snap document.Snapshot) {
		msg, err := protocol.EncodeReject(cause, e, snap)
		if err != nil {
			h.logger.Error("failed to encode rejection", logger.Error(err))
			return
		}
		if err := h.peer.Send(msg); err != nil {
			h.logger.Warn("failed to queue rejection", logger.Error(err))
		}
	})
}

// resync answers a sync request with a fresh initial snapshot, queued the
// same way as on join.
func (h *connHandler) resync() {
	h.s.doc.Join(func(snap document.Snapshot) {
		msg, err := protocol.EncodeInitial(snap)
		if err != nil {
			h.logger.Error("failed to encode snapshot", logger.Error(err))
			return
		}
		if err := h.peer.Send(msg); err != nil {
			h.logger.Warn("failed to queue snapshot", logger.Error(err))
			return
		}
		h.logger.Debug("resynced session", logger.Version(snap.Version))
	})
}

func (h *connHandler) writeLoop(readDone <-chan struct{}) {
	var ping <-chan time.Time
	if h.s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.s.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case msg := <-h.peer.Outbound():
			if err := h.write(msg); err != nil {
				h.logger.Warn("write failed", logger.Error(err))
				return
			}
		case <-ping:
			if err := h.conn.WriteControl(websocket.PingMessage, nil, h.deadline()); err != nil {
				h.logger.Debug("ping failed", logger.Error(err))
				return
			}
		case <-h.peer.Lagging():
			h.logger.Warn("session cannot keep up, closing")
			h.closeWith(websocket.CloseTryAgainLater, "outbound queue full")
			return
		case <-h.s.closing:
			h.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-readDone:
			return
		}
	}
}

func (h *connHandler) write(msg []byte) error {
	if h.s.cfg.WriteTimeout > 0 {
		if err := h.conn.SetWriteDeadline(h.deadline()); err != nil {
			return err
		}
	}
	return h.conn.WriteMessage(websocket.TextMessage, msg)
}

func (h *connHandler) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := h.conn.WriteControl(websocket.CloseMessage, msg, h.deadline()); err != nil {
		h.logger.Debug("close handshake failed", logger.Error(err))
	}
}

func (h *connHandler) deadline() time.Time {
	timeout := h.s.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return time.Now().Add(timeout)
}

// pongWait is how long the reader waits for any frame, pongs included.
func (h *connHandler) pongWait() time.Duration {
	if h.s.cfg.PingInterval <= 0 {
		return 0
	}
	return 2 * h.s.cfg.PingInterval
}
