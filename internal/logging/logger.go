// Package logging is the daemon's operational audit trail: an append-only
// JSONL log with size-triggered rotation plus an optional colorized console
// sink for foreground runs. Logging is strictly best-effort; no call into
// this package ever returns an error or panics, because a component that is
// logging must never be taken down by its logger.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const (
	// DefaultMaxSize is the rotation threshold for the active file.
	DefaultMaxSize = 50 * 1024 * 1024

	// DefaultMaxBackups is the number of rotated files kept next to the
	// active file, named <path>.1 (most recent) through <path>.N.
	DefaultMaxBackups = 5
)

// Entry is one log line. Entries are immutable once constructed and are
// persisted in arrival order.
type Entry struct {
	TS        string `json:"ts"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Msg       string `json:"msg"`
	Data      any    `json:"data,omitempty"`
}

// Options configures a Logger.
type Options struct {
	// FilePath is the active log file. Empty disables the file sink.
	FilePath string

	// MinLevel gates which entries are emitted at all.
	MinLevel Level

	// MaxSize is the rotation threshold in bytes (default 50 MiB).
	MaxSize int64

	// MaxBackups is the number of rotated files to keep (default 5).
	MaxBackups int

	// Console overrides the console sink. When nil, stderr is used if it
	// is a terminal or ForceConsole is set; otherwise the console sink is
	// disabled and stderr only carries degradation diagnostics.
	Console io.Writer

	// ForceConsole enables the console sink even when stderr is not a
	// terminal (daemon foreground mode).
	ForceConsole bool
}

// Logger writes structured entries to a console sink and a rotating file,
// each independently best-effort. One process owns a given log file;
// sharing a file across processes will race on rotation.
type Logger struct {
	mu         sync.Mutex
	minLevel   Level
	filePath   string
	maxSize    int64
	maxBackups int
	console    io.Writer
}

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

// New creates a Logger. The parent directory of the log file is created
// recursively if it does not exist; that is the only operation that can
// fail loudly, because a logger that can never persist anything is a
// configuration error worth surfacing at startup.
func New(opts Options) (*Logger, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}

	console := opts.Console
	if console == nil && (opts.ForceConsole || term.IsTerminal(int(os.Stderr.Fd()))) {
		console = os.Stderr
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	return &Logger{
		minLevel:   opts.MinLevel,
		filePath:   opts.FilePath,
		maxSize:    opts.MaxSize,
		maxBackups: opts.MaxBackups,
		console:    console,
	}, nil
}

// Log records one entry if level clears the configured minimum.
func (l *Logger) Log(level Level, component, msg string, data any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}
	l.emit(level, component, msg, data)
}

// Debug logs at debug level.
func (l *Logger) Debug(component, msg string, data any) {
	l.Log(LevelDebug, component, msg, data)
}

// Info logs at info level.
func (l *Logger) Info(component, msg string, data any) {
	l.Log(LevelInfo, component, msg, data)
}

// Warn logs at warn level.
func (l *Logger) Warn(component, msg string, data any) {
	l.Log(LevelWarn, component, msg, data)
}

// Error logs at error level.
func (l *Logger) Error(component, msg string, data any) {
	l.Log(LevelError, component, msg, data)
}

// SetLevel changes the minimum level for all subsequent calls and emits one
// entry at component "logger" documenting the change. The entry itself
// bypasses the gate so the change is always visible in the trail.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.minLevel
	l.minLevel = level
	l.emit(LevelInfo, "logger", "log level changed", map[string]string{
		"from": old.String(),
		"to":   level.String(),
	})
}

// Level returns the active minimum level.
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minLevel
}

// emit constructs the entry and writes it to both sinks. Caller holds l.mu.
func (l *Logger) emit(level Level, component, msg string, data any) {
	entry := Entry{
		TS:        time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Component: component,
		Msg:       msg,
		Data:      data,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		// Unserializable payload: drop the payload, keep the message.
		entry.Data = fmt.Sprintf("(unserializable: %v)", err)
		line, _ = json.Marshal(entry)
	}
	line = append(line, '\n')

	if l.console != nil {
		l.writeConsole(level, entry)
	}
	if l.filePath != "" {
		l.appendFile(line)
	}
}

// writeConsole renders a human-oriented line on the console sink.
func (l *Logger) writeConsole(level Level, entry Entry) {
	tag := levelColors[level].Sprintf("%-5s", entry.Level)
	suffix := ""
	if entry.Data != nil {
		if data, err := json.Marshal(entry.Data); err == nil {
			suffix = " " + string(data)
		}
	}
	fmt.Fprintf(l.console, "%s %s [%s] %s%s\n", entry.TS, tag, entry.Component, entry.Msg, suffix)
}

// appendFile appends one serialized line to the active file, rotating first
// when the file has reached the size threshold. Filesystem errors degrade
// to a diagnostic plus the original line on the console sink.
func (l *Logger) appendFile(line []byte) {
	if err := l.rotateIfNeeded(); err != nil {
		l.degrade("log rotation failed", err, line)
		// Keep appending to the oversized active file; losing the entry
		// would be worse than exceeding the threshold.
	}

	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		l.degrade("log append failed", err, line)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(line); err != nil {
		l.degrade("log append failed", err, line)
	}
}

// rotateIfNeeded runs the rename chain when the active file is at or above
// the threshold: drop <path>.<maxBackups>, shift every backup up one slot,
// move the active file to <path>.1. The next append recreates the active
// file, so at most maxBackups backups plus the active file exist at any
// point.
func (l *Logger) rotateIfNeeded() error {
	info, err := os.Stat(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat active log: %w", err)
	}
	if info.Size() < l.maxSize {
		return nil
	}

	oldest := l.backupPath(l.maxBackups)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove oldest backup: %w", err)
	}

	for i := l.maxBackups - 1; i >= 1; i-- {
		src := l.backupPath(i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, l.backupPath(i+1)); err != nil {
			return fmt.Errorf("shift backup %d: %w", i, err)
		}
	}

	if err := os.Rename(l.filePath, l.backupPath(1)); err != nil {
		return fmt.Errorf("rotate active log: %w", err)
	}
	return nil
}

func (l *Logger) backupPath(i int) string {
	return fmt.Sprintf("%s.%d", l.filePath, i)
}

// degrade reports a file-sink failure on the console sink together with the
// line that could not be persisted. Falls back to stderr when the console
// sink is disabled so the entry is never silently lost.
func (l *Logger) degrade(what string, err error, line []byte) {
	out := l.console
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "%s: %v\n%s", what, err, line)
}
