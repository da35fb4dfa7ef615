package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tmuxagents/tmux-agents/internal/logging"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	// Pong must arrive within this window or the connection is dropped.
	pongTimeout = 60 * time.Second
	// Per-connection outbound buffer. A subscriber that stops draining
	// loses frames rather than stalling the daemon.
	sendBuffer = 64
)

// Server accepts push-channel subscribers and broadcasts frames to them.
type Server struct {
	socketPath string
	log        *logging.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	mu    sync.Mutex
	conns map[*subscriber]struct{}
}

type subscriber struct {
	ws     *websocket.Conn
	sendCh chan []byte
	once   sync.Once
}

// NewServer creates a push-channel server bound to the given unix socket.
func NewServer(socketPath string, log *logging.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		log:        log,
		// Connections arrive over a local unix socket; there is no
		// meaningful origin to check.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*subscriber]struct{}),
	}
}

// Start begins serving the /events endpoint.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale events socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on events socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set events socket permissions: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("events", "serve failed", map[string]string{"error": err.Error()})
		}
	}()

	s.log.Info("events", "push channel listening", map[string]string{"socket": s.socketPath})
	return nil
}

// Stop disconnects all subscribers and shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	for sub := range s.conns {
		sub.close()
	}
	s.conns = make(map[*subscriber]struct{})
	s.mu.Unlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown events server: %w", err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove events socket: %w", err)
	}
	return nil
}

// Publish broadcasts one frame to every connected subscriber. Frames to a
// subscriber with a full buffer are dropped for that subscriber only.
func (s *Server) Publish(event string, data any) {
	frame, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		s.log.Warn("events", "unserializable event dropped", map[string]string{"event": event, "error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.conns {
		select {
		case sub.sendCh <- frame:
		default:
			s.log.Warn("events", "slow subscriber, frame dropped", map[string]string{"event": event})
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (s *Server) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("events", "upgrade failed", map[string]string{"error": err.Error()})
		return
	}

	sub := &subscriber{ws: ws, sendCh: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	s.conns[sub] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("events", "subscriber connected", nil)

	go s.writePump(sub)
	s.readPump(sub)

	s.mu.Lock()
	delete(s.conns, sub)
	s.mu.Unlock()
	sub.close()
	s.log.Debug("events", "subscriber disconnected", nil)
}

// readPump discards inbound traffic; its job is to notice the close.
func (s *Server) readPump(sub *subscriber) {
	_ = sub.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	sub.ws.SetPongHandler(func(string) error {
		return sub.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := sub.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-sub.sendCh:
			if !ok {
				return
			}
			_ = sub.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (sub *subscriber) close() {
	sub.once.Do(func() {
		close(sub.sendCh)
		_ = sub.ws.Close()
	})
}
