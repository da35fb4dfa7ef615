package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tmuxagents/tmux-agents/internal/logging"
)

// EventServer is the push-channel server as seen by the lifecycle; an
// interface so the daemon package does not import internal/events.
type EventServer interface {
	Publisher
	Start(ctx context.Context) error
	Stop() error
}

// Lifecycle ties the daemon together: liveness record, RPC server, push
// channel, signal handling, and cleanup on every exit path.
type Lifecycle struct {
	server       *Server
	events       EventServer
	pidFile      string
	log          *logging.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(server *Server, events EventServer, pidFile string, log *logging.Logger) *Lifecycle {
	return &Lifecycle{
		server:     server,
		events:     events,
		pidFile:    pidFile,
		log:        log,
		shutdownCh: make(chan struct{}),
	}
}

// Run starts the servers and blocks until shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	// Refuse to start a second daemon against the same control directory.
	if IsRunning(l.pidFile) {
		pid, _ := ReadPIDFile(l.pidFile)
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	if err := WritePIDFile(l.pidFile); err != nil {
		return fmt.Errorf("write liveness record: %w", err)
	}
	l.log.Info("daemon", "started", map[string]int{"pid": os.Getpid()})

	// Safety net for panics and early returns; the graceful path below
	// performs the same cleanup in order.
	cleanedUp := false
	defer func() {
		if !cleanedUp {
			_ = l.events.Stop()
			_ = l.server.Stop()
			_ = RemovePIDFile(l.pidFile)
		}
	}()

	if err := l.server.Start(ctx); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}
	if err := l.events.Start(ctx); err != nil {
		return fmt.Errorf("start events server: %w", err)
	}

	go l.handleSignals()

	<-l.shutdownCh

	cleanedUp = true
	return l.shutdown()
}

// Shutdown triggers a graceful shutdown. Safe to call more than once and
// from RPC handlers.
func (l *Lifecycle) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}

func (l *Lifecycle) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	l.log.Info("daemon", "signal received, shutting down", map[string]string{"signal": sig.String()})
	l.Shutdown()
}

func (l *Lifecycle) shutdown() error {
	l.log.Info("daemon", "graceful shutdown starting", nil)

	if err := l.events.Stop(); err != nil {
		l.log.Error("daemon", "events server stop failed", map[string]string{"error": err.Error()})
	}
	if err := l.server.Stop(); err != nil {
		l.log.Error("daemon", "rpc server stop failed", map[string]string{"error": err.Error()})
	}
	if err := RemovePIDFile(l.pidFile); err != nil {
		l.log.Error("daemon", "liveness record removal failed", map[string]string{"error": err.Error()})
		return err
	}

	l.log.Info("daemon", "stopped", nil)
	return nil
}
