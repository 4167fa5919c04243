package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/sphinxserve/internal/notify"
)

// Reload endpoints.
const (
	WaitPath   = "/_reload-wait"
	SocketPath = "/_reload-ws"
)

// Options configures the web server.
type Options struct {
	// Root is the directory served, i.e. the compiler output.
	Root string

	// Host and Port form the listen address.
	Host string
	Port int

	// FontHosts lists CDNs whose @import rules are stripped from CSS.
	FontHosts []string

	// LongPollTimeout bounds how long WaitPath holds a request before
	// answering 204 so the client re-polls. Zero waits indefinitely.
	LongPollTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns sensible default server options.
func DefaultOptions() Options {
	return Options{
		Host:            "localhost",
		Port:            8888,
		FontHosts:       DefaultFontHosts,
		ShutdownTimeout: 3 * time.Second,
		Logger:          slog.Default(),
	}
}

// Server serves Root and releases long-poll and WebSocket clients whenever
// the reload signal fires.
type Server struct {
	opts     Options
	reload   *notify.Broadcast
	rewriter *Rewriter
	router   *mux.Router
	upgrader websocket.Upgrader
	listener net.Listener
}

// New creates a Server. It does not bind; call Listen or Serve.
func New(opts Options, reload *notify.Broadcast) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 3 * time.Second
	}

	s := &Server{
		opts:     opts,
		reload:   reload,
		rewriter: NewRewriter(opts.FontHosts),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.router = s.routes()

	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc(WaitPath, s.handleReloadWait).Methods(http.MethodGet)
	r.HandleFunc(SocketPath, s.handleReloadSocket).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.serveStatic).Methods(http.MethodGet, http.MethodHead)

	return r
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the configured listen address, or the bound address once
// Listen has succeeded.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Listen binds the listen address. Binding separately from Serve lets the
// caller fail fast, before starting other work, when the port is taken.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.Addr(), err)
	}

	s.listener = ln

	return nil
}

// Serve accepts connections until ctx is done, then shuts down gracefully.
// Pending long-polls and WebSockets are released because every request
// context derives from ctx.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(s.opts.Logger.Handler(), slog.LevelDebug),
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(s.listener)
	}()

	s.opts.Logger.Debug("http server listening", slog.String("addr", s.Addr()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serving http: %w", err)

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutting down http server: %w", err)
	}

	s.opts.Logger.Debug("http server stopped")

	return nil
}
