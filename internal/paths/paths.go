// Package paths derives the well-known filesystem locations used by the
// tma CLI and the daemon. Everything lives under a single control
// directory, <home>/.tmux-agents by default.
package paths

import (
	"os"
	"path/filepath"
)

// ControlDirEnv overrides the control directory when set. Used by tests and
// by users who keep their home directory on a network filesystem.
const ControlDirEnv = "TMA_CONTROL_DIR"

// ControlDir returns the canonical control directory.
// Resolution order: $TMA_CONTROL_DIR, then <home>/.tmux-agents.
// If the home directory cannot be determined, falls back to a path relative
// to the current directory so that callers never receive an empty string.
func ControlDir() string {
	if dir := os.Getenv(ControlDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tmux-agents"
	}
	return filepath.Join(home, ".tmux-agents")
}

// SocketPath returns the unix socket path for the daemon's JSON-RPC server.
func SocketPath() string {
	return filepath.Join(ControlDir(), "daemon.sock")
}

// EventsSocketPath returns the unix socket path for the daemon's
// WebSocket push-channel server.
func EventsSocketPath() string {
	return filepath.Join(ControlDir(), "events.sock")
}

// PIDFilePath returns the path of the daemon liveness record: a plain
// decimal process id, optionally newline-terminated.
func PIDFilePath() string {
	return filepath.Join(ControlDir(), "daemon.pid")
}

// LogFilePath returns the daemon's rotating log file path.
func LogFilePath() string {
	return filepath.Join(ControlDir(), "logs", "daemon.log")
}

// ConfigFilePath returns the user configuration file path.
func ConfigFilePath() string {
	return filepath.Join(ControlDir(), "config.toml")
}
