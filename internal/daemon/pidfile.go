package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultPollInterval is the probe interval used by WaitForRunning when the
// caller passes a non-positive interval.
const DefaultPollInterval = 100 * time.Millisecond

// WritePIDFile records the current process id at path as plain decimal text.
// The liveness record is created when the daemon starts and removed when it
// stops; clients only ever read it.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create control directory: %w", err)
	}
	content := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPIDFile reads a process id from path. The file holds a decimal
// integer, optionally newline-terminated. Negative values are rejected.
func ReadPIDFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		// Not wrapped so callers can branch on os.IsNotExist.
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file content: %w", err)
	}
	if pid < 0 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	return pid, nil
}

// RemovePIDFile deletes the liveness record. Missing files are not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// processProbe is the result of an OS-level process existence check.
type processProbe int

const (
	probeNotFound processProbe = iota
	probeUnsignalable
	probeAlive
)

// probeProcess checks whether a process exists using signal 0, which checks
// permissions and existence without delivering anything.
func probeProcess(pid int) processProbe {
	process, err := os.FindProcess(pid)
	if err != nil {
		// On unix FindProcess always succeeds; on other platforms a
		// failure means the process is gone.
		return probeNotFound
	}

	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return probeAlive
	case errors.Is(err, syscall.EPERM):
		// The process exists but belongs to another user. Alive.
		return probeUnsignalable
	case errors.Is(err, syscall.ESRCH):
		return probeNotFound
	default:
		return probeNotFound
	}
}

// IsRunning reports whether the daemon named by the liveness record at
// pidPath is alive. It never fails: a missing record, unreadable content,
// or a dead process all collapse to false, and a process the caller cannot
// signal counts as alive. Note that pid reuse can false-positive here;
// a plain pid record carries no stronger identity token.
func IsRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return false
	}
	return probeProcess(pid) != probeNotFound
}

// WaitForRunning polls IsRunning at a fixed interval until it observes the
// daemon alive or timeout elapses. Returns true on the first positive
// probe, false at timeout. The loop is bounded by timeout alone; there is
// no external cancellation.
func WaitForRunning(pidPath string, timeout, poll time.Duration) bool {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return false
		case <-ticker.C:
			if IsRunning(pidPath) {
				return true
			}
		}
	}
}
