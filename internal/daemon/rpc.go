package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tmuxagents/tmux-agents/internal/logging"
)

// Publisher delivers an {event, data} frame to every push-channel
// subscriber. Implemented by the events server.
type Publisher interface {
	Publish(event string, data any)
}

// RPCDeps carries everything the RPC handlers need.
type RPCDeps struct {
	Registry *Registry
	Events   Publisher
	Log      *logging.Logger
	Version  string
	Shutdown func()
}

// HealthResult is the response of the health method.
type HealthResult struct {
	Status   string `json:"status"`
	PID      int    `json:"pid"`
	Version  string `json:"version"`
	UptimeMs int64  `json:"uptime_ms"`
}

// RegisterHandlers wires the daemon's method set onto the RPC server.
func RegisterHandlers(s *Server, deps RPCDeps) {
	s.RegisterHandler("health", func(ctx context.Context, params json.RawMessage) (any, error) {
		return HealthResult{
			Status:   "ok",
			PID:      os.Getpid(),
			Version:  deps.Version,
			UptimeMs: s.Uptime().Milliseconds(),
		}, nil
	})

	s.RegisterHandler("agent.register", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Name    string `json:"name"`
			Session string `json:"session"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("name is required")
		}
		agent := deps.Registry.RegisterAgent(p.Name, p.Session)
		deps.Log.Info("rpc", "agent registered", map[string]string{"id": agent.ID, "name": agent.Name})
		deps.Events.Publish("agent.registered", agent)
		return agent, nil
	})

	s.RegisterHandler("agent.list", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"agents": deps.Registry.Agents()}, nil
	})

	s.RegisterHandler("agent.remove", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		agent, err := deps.Registry.RemoveAgent(p.ID)
		if err != nil {
			return nil, err
		}
		deps.Log.Info("rpc", "agent removed", map[string]string{"id": agent.ID})
		deps.Events.Publish("agent.removed", agent)
		return agent, nil
	})

	s.RegisterHandler("task.add", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Title   string `json:"title"`
			AgentID string `json:"agent_id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		if p.Title == "" {
			return nil, fmt.Errorf("title is required")
		}
		task := deps.Registry.AddTask(p.Title, p.AgentID)
		deps.Log.Info("rpc", "task added", map[string]string{"id": task.ID})
		deps.Events.Publish("task.added", task)
		return task, nil
	})

	s.RegisterHandler("task.list", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"tasks": deps.Registry.Tasks()}, nil
	})

	s.RegisterHandler("task.done", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		task, err := deps.Registry.CompleteTask(p.ID)
		if err != nil {
			return nil, err
		}
		deps.Log.Info("rpc", "task completed", map[string]string{"id": task.ID})
		deps.Events.Publish("task.updated", task)
		return task, nil
	})

	s.RegisterHandler("log.level", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		level, err := logging.ParseLevel(p.Level)
		if err != nil {
			return nil, err
		}
		deps.Log.SetLevel(level)
		return map[string]string{"level": level.String()}, nil
	})

	s.RegisterHandler("shutdown", func(ctx context.Context, params json.RawMessage) (any, error) {
		deps.Log.Info("rpc", "shutdown requested", nil)
		// Respond before the listener goes away.
		go deps.Shutdown()
		return map[string]bool{"ok": true}, nil
	})
}
