package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if cfg.Log.MaxSize != 50*1024*1024 {
		t.Errorf("log.max_size = %d, want 50 MiB", cfg.Log.MaxSize)
	}
	if cfg.Log.MaxBackups != 5 {
		t.Errorf("log.max_backups = %d, want 5", cfg.Log.MaxBackups)
	}
	if cfg.Reconnect.BaseDelay != time.Second {
		t.Errorf("reconnect.base_delay = %s, want 1s", cfg.Reconnect.BaseDelay)
	}
	if cfg.Reconnect.MaxAttempts != 10 {
		t.Errorf("reconnect.max_attempts = %d, want 10", cfg.Reconnect.MaxAttempts)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"
max_backups = 2

[reconnect]
base_delay = "250ms"
max_attempts = 3
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.MaxBackups != 2 {
		t.Errorf("log.max_backups = %d, want 2", cfg.Log.MaxBackups)
	}
	if cfg.Reconnect.BaseDelay != 250*time.Millisecond {
		t.Errorf("reconnect.base_delay = %s, want 250ms", cfg.Reconnect.BaseDelay)
	}
	if cfg.Reconnect.MaxAttempts != 3 {
		t.Errorf("reconnect.max_attempts = %d, want 3", cfg.Reconnect.MaxAttempts)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "warn"
`)
	t.Setenv("TMA_LOG_LEVEL", "error")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log.level = %q, want error (env override)", cfg.Log.Level)
	}
}

func TestRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad level":    "[log]\nlevel = \"shout\"\n",
		"zero backups": "[log]\nmax_backups = 0\n",
		"zero budget":  "[reconnect]\nmax_attempts = 0\n",
		"neg delay":    "[reconnect]\nbase_delay = \"-1s\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, body)); err == nil {
				t.Error("LoadFile() accepted invalid config")
			}
		})
	}
}

func TestMalformedFileIsAnError(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "log = [broken")); err == nil {
		t.Error("LoadFile() accepted malformed TOML")
	}
}
