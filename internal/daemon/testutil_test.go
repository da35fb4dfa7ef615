package daemon

import (
	"io"
	"os/exec"
	"strconv"
	"testing"

	"github.com/tmuxagents/tmux-agents/internal/logging"
)

// spawnAndReap starts a short-lived process and waits for it, returning a
// pid that is known to be dead.
func spawnAndReap(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn helper process: %v", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Wait()
	return pid
}

func formatPID(pid int) string {
	return strconv.Itoa(pid) + "\n"
}

// testLogger returns a logger that keeps test output quiet.
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(logging.Options{Console: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	return log
}
