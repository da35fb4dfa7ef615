package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tmuxagents/tmux-agents/internal/logging"
)

// Handler is a function that handles a JSON-RPC request.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server is the unix-socket JSON-RPC server. Requests and responses are
// newline-delimited JSON-RPC 2.0 objects, one connection per CLI invocation.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]Handler
	log        *logging.Logger
	mu         sync.RWMutex
	shutdown   bool
	wg         sync.WaitGroup
	startTime  time.Time
}

// NewServer creates an RPC server bound to the given socket path.
func NewServer(socketPath string, log *logging.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
		log:        log,
		startTime:  time.Now(),
	}
}

// RegisterHandler registers a handler for a JSON-RPC method.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Start begins accepting connections on the unix socket.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if err := s.removeStaleSocket(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	go s.acceptLoop(ctx)
	s.log.Info("server", "rpc server listening", map[string]string{"socket": s.socketPath})
	return nil
}

// Stop closes the listener, waits briefly for in-flight requests, and
// removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("server", "timed out waiting for connections to drain", nil)
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// removeStaleSocket clears a leftover socket file, refusing to start when
// another daemon is still answering on it.
func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return
			}
			s.log.Warn("server", "accept failed", map[string]string{"error": err.Error()})
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if err := s.writeResponse(writer, errorResponse(nil, -32700, "Parse error", err.Error())); err != nil {
				return
			}
			continue
		}
		if req.JSONRPC != "2.0" {
			if err := s.writeResponse(writer, errorResponse(req.ID, -32600, "Invalid request", "jsonrpc field must be '2.0'")); err != nil {
				return
			}
			continue
		}

		s.mu.RLock()
		handler, ok := s.handlers[req.Method]
		s.mu.RUnlock()
		if !ok {
			if err := s.writeResponse(writer, errorResponse(req.ID, -32601, "Method not found", fmt.Sprintf("method %q is not registered", req.Method))); err != nil {
				return
			}
			continue
		}

		params := req.Params
		if params == nil {
			params = json.RawMessage("{}")
		}

		result, err := handler(ctx, params)
		if err != nil {
			s.log.Debug("server", "handler error", map[string]string{"method": req.Method, "error": err.Error()})
			if err := s.writeResponse(writer, errorResponse(req.ID, -32000, err.Error(), nil)); err != nil {
				return
			}
			continue
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			if err := s.writeResponse(writer, errorResponse(req.ID, -32603, "Internal error", err.Error())); err != nil {
				return
			}
			continue
		}

		if err := s.writeResponse(writer, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: resultJSON}); err != nil {
			return
		}
	}
}

func (s *Server) writeResponse(writer *bufio.Writer, resp rpcResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return err
	}
	if err := writer.WriteByte('\n'); err != nil {
		return err
	}
	return writer.Flush()
}

func errorResponse(id *json.RawMessage, code int, message string, data any) rpcResponse {
	return rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	}
}

// JSON-RPC 2.0 wire structures.
type rpcRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *rpcError        `json:"error,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
