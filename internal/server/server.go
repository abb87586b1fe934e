// Package server hosts the shared document and relays edits between the
// connected websocket sessions.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/irvifa/collaborative-editor/internal/config"
	"github.com/irvifa/collaborative-editor/internal/discovery"
	"github.com/irvifa/collaborative-editor/internal/document"
	"github.com/irvifa/collaborative-editor/internal/feed"
	"github.com/irvifa/collaborative-editor/internal/logger"
	"github.com/irvifa/collaborative-editor/internal/session"
)

// ErrHandshake marks a failed websocket upgrade.
var ErrHandshake = errors.New("websocket handshake failed")

// Server owns the document and the session registry and serves the
// websocket and HTTP endpoints.
type Server struct {
	cfg      config.Server
	doc      *document.Document
	registry *session.Registry
	feed     *feed.Dispatcher
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	closing   chan struct{}
	closeOnce sync.Once
	sessions  sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithFeed publishes applied edits to d. The server runs d for its lifetime.
func WithFeed(d *feed.Dispatcher) Option {
	return func(s *Server) {
		s.feed = d
	}
}

// WithOriginCheck overrides the websocket origin check. By default every
// origin is accepted.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// New creates a server with an empty document.
func New(cfg config.Server, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		cfg:      cfg,
		doc:      document.New(),
		registry: session.NewRegistry(log.With(logger.Component("registry"))),
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.feed == nil {
		s.feed = feed.NewDispatcher(log, 1)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/document", s.handleDocument).Methods(http.MethodGet)
	return r
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler { return s.router }

// Document returns the shared document.
func (s *Server) Document() *document.Document { return s.doc }

// Registry returns the session registry.
func (s *Server) Registry() *session.Registry { return s.registry }

// Run binds the configured address and serves until ctx is cancelled.
// Failing to bind is the only fatal error.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully: the listener closes, sessions are told to go away, and the
// feed is flushed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.feed.Run(gctx); err != nil {
			s.logger.Warn("feed closed with errors", logger.Error(err))
		}
		return nil
	})

	if s.cfg.MDNS.Enabled {
		g.Go(func() error {
			port := 0
			if addr, ok := ln.Addr().(*net.TCPAddr); ok {
				port = addr.Port
			}
			err := discovery.Advertise(gctx, s.logger, s.cfg.MDNS.Instance, s.cfg.MDNS.Service, s.cfg.MDNS.Domain, port, "/ws")
			if err != nil {
				s.logger.Warn("mDNS advertisement disabled", logger.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info("collaboration server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", slog.Duration("timeout", s.cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		s.closeSessions(shutdownCtx)
		if err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// closeSessions tells every session to go away and waits for them to finish
// or for ctx to expire.
func (s *Server) closeSessions(ctx context.Context) {
	s.closeOnce.Do(func() { close(s.closing) })

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("sessions still open after shutdown timeout", slog.Int("sessions", s.registry.Len()))
	}
}

// serveWS upgrades the request and runs the session until it ends. A failed
// upgrade never reaches the registry.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	// Must precede the upgrade: Shutdown stops tracking hijacked connections.
	s.sessions.Add(1)
	defer s.sessions.Done()

	select {
	case <-s.closing:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		s.logger.Warn("rejected connection",
			logger.RemoteAddr(r.RemoteAddr),
			logger.Error(fmt.Errorf("%w: %v", ErrHandshake, err)),
		)
		return
	}

	newConnHandler(s, conn, r.RemoteAddr).run()
}
