// Package config resolves user configuration for the tma CLI and daemon.
// Values come from, in increasing priority: built-in defaults, the config
// file in the control directory, and TMA_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tmuxagents/tmux-agents/internal/paths"
)

// Config is the resolved configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
}

// LogConfig controls the daemon's rotating log.
type LogConfig struct {
	// Level is the minimum level written: debug, info, warn or error.
	Level string `mapstructure:"level"`
	// File is the log file path. Empty means the control-dir default.
	File string `mapstructure:"file"`
	// MaxSize is the rotation threshold in bytes.
	MaxSize int64 `mapstructure:"max_size"`
	// MaxBackups is how many rotated files are kept.
	MaxBackups int `mapstructure:"max_backups"`
}

// ReconnectConfig controls the push-channel retry policy.
type ReconnectConfig struct {
	// BaseDelay is the first retry delay; attempt n waits BaseDelay * 2^(n-1).
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// MaxAttempts is the retry budget before the channel gives up.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Load reads the config file from the control directory, if present, and
// applies TMA_* environment overrides (e.g. TMA_LOG_LEVEL=debug). A missing
// config file is not an error; defaults apply.
func Load() (*Config, error) {
	return LoadFile(paths.ConfigFilePath())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", paths.LogFilePath())
	v.SetDefault("log.max_size", int64(50*1024*1024))
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("reconnect.base_delay", time.Second)
	v.SetDefault("reconnect.max_attempts", 10)

	v.SetEnvPrefix("TMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.Log.MaxSize <= 0 {
		return fmt.Errorf("log.max_size must be positive, got %d", c.Log.MaxSize)
	}
	if c.Log.MaxBackups < 1 {
		return fmt.Errorf("log.max_backups must be at least 1, got %d", c.Log.MaxBackups)
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect.base_delay must be positive, got %s", c.Reconnect.BaseDelay)
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect.max_attempts must be at least 1, got %d", c.Reconnect.MaxAttempts)
	}
	return nil
}
