package events

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmuxagents/tmux-agents/internal/logging"
	"github.com/tmuxagents/tmux-agents/internal/pushchan"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "events.sock")
	log, err := logging.New(logging.Options{Console: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(socketPath, log)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, socketPath
}

func connectClient(t *testing.T, socketPath string) *pushchan.Client {
	t.Helper()
	client := pushchan.New(pushchan.Options{SocketPath: socketPath})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(client.Disconnect)
	return client
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	srv, socketPath := startServer(t)

	clientA := connectClient(t, socketPath)
	clientB := connectClient(t, socketPath)

	gotA := make(chan pushchan.Event, 1)
	gotB := make(chan pushchan.Event, 1)
	clientA.Subscribe(func(e pushchan.Event) { gotA <- e })
	clientB.Subscribe(func(e pushchan.Event) { gotB <- e })

	// Both transports must be registered before publishing.
	waitForSubscribers(t, srv, 2)

	srv.Publish("task.added", map[string]string{"id": "tsk_01", "title": "demo"})

	for name, ch := range map[string]chan pushchan.Event{"A": gotA, "B": gotB} {
		select {
		case e := <-ch:
			if e.Event != "task.added" {
				t.Errorf("client %s: event = %q, want task.added", name, e.Event)
			}
			var data struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(e.Data, &data); err != nil || data.ID != "tsk_01" {
				t.Errorf("client %s: data = %s (err %v)", name, e.Data, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("client %s never received the broadcast", name)
		}
	}
}

func TestDisconnectedSubscriberIsDropped(t *testing.T) {
	srv, socketPath := startServer(t)

	client := connectClient(t, socketPath)
	waitForSubscribers(t, srv, 1)

	client.Disconnect()
	deadline := time.Now().Add(5 * time.Second)
	for srv.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount() = %d after client disconnect, want 0", n)
	}

	// Publishing into an empty room is a no-op, not a failure.
	srv.Publish("agent.registered", nil)
}

func TestStopRemovesSocket(t *testing.T) {
	srv, socketPath := startServer(t)
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// The socket file is gone, so a new dial must fail.
	client := pushchan.New(pushchan.Options{SocketPath: socketPath})
	if err := client.Connect(context.Background()); err == nil {
		t.Error("Connect() succeeded against a stopped server")
	}
}

func waitForSubscribers(t *testing.T, srv *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.SubscriberCount() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := srv.SubscriberCount(); got != want {
		t.Fatalf("SubscriberCount() = %d, want %d", got, want)
	}
}
