package daemon

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Agent is a tracked assistant session managed by the daemon.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Session   string `json:"session,omitempty"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
}

// Task is one entry on the task board.
type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	AgentID   string `json:"agent_id,omitempty"`
	CreatedAt string `json:"created_at"`
	DoneAt    string `json:"done_at,omitempty"`
}

// Task and agent statuses.
const (
	AgentStatusRunning = "running"
	TaskStatusOpen     = "open"
	TaskStatusDone     = "done"
)

// Registry holds the daemon's view of agents and tasks. State is in-memory
// only; durable task-board storage lives outside this daemon.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	tasks  map[string]Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		tasks:  make(map[string]Task),
	}
}

// RegisterAgent adds a new agent and returns it with a fresh id.
func (r *Registry) RegisterAgent(name, session string) Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent := Agent{
		ID:        "agt_" + ulid.Make().String(),
		Name:      name,
		Session:   session,
		Status:    AgentStatusRunning,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	r.agents[agent.ID] = agent
	return agent
}

// RemoveAgent deletes an agent by full id.
func (r *Registry) RemoveAgent(id string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("unknown agent %q", id)
	}
	delete(r.agents, id)
	return agent, nil
}

// Agents returns a snapshot of all agents, ordered by id.
func (r *Registry) Agents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// AddTask creates a new open task.
func (r *Registry) AddTask(title, agentID string) Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := Task{
		ID:        "tsk_" + ulid.Make().String(),
		Title:     title,
		Status:    TaskStatusOpen,
		AgentID:   agentID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	r.tasks[task.ID] = task
	return task
}

// CompleteTask marks a task done by full id.
func (r *Registry) CompleteTask(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("unknown task %q", id)
	}
	if task.Status == TaskStatusDone {
		return Task{}, fmt.Errorf("task %q is already done", id)
	}
	task.Status = TaskStatusDone
	task.DoneAt = time.Now().UTC().Format(time.RFC3339)
	r.tasks[id] = task
	return task, nil
}

// Tasks returns a snapshot of all tasks, ordered by id (ULIDs sort by
// creation time).
func (r *Registry) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}
