package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const socketWriteTimeout = 5 * time.Second

// handleReloadWait blocks until the reload signal fires and then answers
// 200 with an empty body. A wait that exceeds LongPollTimeout answers 204;
// a wait cut short by shutdown answers 503. Neither triggers a reload.
func (s *Server) handleReloadWait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.opts.LongPollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.LongPollTimeout)
		defer cancel()
	}

	w.Header().Set("Cache-Control", "no-store")

	if err := s.reload.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		http.Error(w, "503 server shutting down", http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleReloadSocket upgrades to a WebSocket and sends a "reload" text
// message on every firing of the reload signal.
func (s *Server) handleReloadSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is required to process pings and the client's close frame.
	go func() {
		defer cancel()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.streamReloads(ctx, func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, []byte("reload"))
	})

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
}

// streamReloads calls send once per firing of the reload signal until ctx is
// done or send fails. The next firing is subscribed to before send runs, so
// a firing during a slow write still produces another send.
func (s *Server) streamReloads(ctx context.Context, send func() error) {
	next := s.reload.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return

		case <-next:
			next = s.reload.Subscribe()

			if err := send(); err != nil {
				return
			}
		}
	}
}
