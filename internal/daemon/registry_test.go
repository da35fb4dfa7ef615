package daemon

import (
	"strings"
	"testing"
)

func TestRegisterAndListAgents(t *testing.T) {
	reg := NewRegistry()

	a := reg.RegisterAgent("reviewer", "tmux-3")
	b := reg.RegisterAgent("builder", "")

	if !strings.HasPrefix(a.ID, "agt_") {
		t.Errorf("agent id %q missing agt_ prefix", a.ID)
	}
	if a.Status != AgentStatusRunning {
		t.Errorf("status = %q, want %q", a.Status, AgentStatusRunning)
	}

	agents := reg.Agents()
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if a.ID == b.ID {
		t.Error("agent ids collide")
	}
}

func TestRemoveAgent(t *testing.T) {
	reg := NewRegistry()
	a := reg.RegisterAgent("reviewer", "")

	removed, err := reg.RemoveAgent(a.ID)
	if err != nil {
		t.Fatalf("RemoveAgent() error: %v", err)
	}
	if removed.ID != a.ID {
		t.Errorf("removed id = %q, want %q", removed.ID, a.ID)
	}
	if len(reg.Agents()) != 0 {
		t.Error("agent still listed after removal")
	}
	if _, err := reg.RemoveAgent(a.ID); err == nil {
		t.Error("removing an unknown agent should fail")
	}
}

func TestTaskLifecycle(t *testing.T) {
	reg := NewRegistry()
	task := reg.AddTask("wire the parser", "")

	if !strings.HasPrefix(task.ID, "tsk_") {
		t.Errorf("task id %q missing tsk_ prefix", task.ID)
	}
	if task.Status != TaskStatusOpen {
		t.Errorf("status = %q, want %q", task.Status, TaskStatusOpen)
	}

	done, err := reg.CompleteTask(task.ID)
	if err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}
	if done.Status != TaskStatusDone || done.DoneAt == "" {
		t.Errorf("completed task = %+v", done)
	}

	if _, err := reg.CompleteTask(task.ID); err == nil {
		t.Error("completing a done task should fail")
	}
	if _, err := reg.CompleteTask("tsk_missing"); err == nil {
		t.Error("completing an unknown task should fail")
	}
}

func TestTasksOrderedByID(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 5; i++ {
		reg.AddTask("task", "")
	}
	tasks := reg.Tasks()
	for i := 1; i < len(tasks); i++ {
		if tasks[i-1].ID >= tasks[i].ID {
			t.Errorf("tasks not ordered: %q before %q", tasks[i-1].ID, tasks[i].ID)
		}
	}
}
