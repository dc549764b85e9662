package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossflow/crossflow/internal/core/observability/log"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 30 * time.Second
)

// WSServer serves the snapshot feed over WebSocket at /ws, with a trivial
// /health endpoint next to it.
type WSServer struct {
	addr     string
	hub      *Hub
	server   *http.Server
	upgrader websocket.Upgrader
	logger   log.Log
}

func NewWSServer(addr string, hub *Hub, logger log.Log) *WSServer {
	if logger == nil {
		logger = log.Discard()
	}
	s := &WSServer{
		addr: addr,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The feed is read-only public state; any origin may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With(log.String("transport", "websocket")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming
	}
	return s
}

// Start listens on the configured address and serves in the background.
func (s *WSServer) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go s.Serve(l)
	return nil
}

// Serve runs the HTTP server on an existing listener, blocking until the
// server closes.
func (s *WSServer) Serve(l net.Listener) {
	s.logger.Info("feed listening", log.String("addr", l.Addr().String()))
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("feed server error", log.Error(err))
	}
}

// Shutdown closes the server, draining in-flight handlers.
func (s *WSServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", log.Error(err))
		return
	}

	id, frames := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)
	defer conn.Close()

	// The feed never expects client messages; the read loop only notices
	// the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case buf, ok := <-frames:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				s.logger.Debug("write failed, dropping subscriber",
					log.String("subscriber", id), log.Error(err))
				return
			}
		}
	}
}
