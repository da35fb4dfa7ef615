package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tmuxagents/tmux-agents/internal/daemon"
	"github.com/tmuxagents/tmux-agents/internal/events"
	"github.com/tmuxagents/tmux-agents/internal/logging"
	"github.com/tmuxagents/tmux-agents/internal/paths"
)

const startTimeout = 10 * time.Second

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
	}
	cmd.AddCommand(daemonStartCmd())
	cmd.AddCommand(daemonStopCmd())
	cmd.AddCommand(daemonStatusCmd())
	cmd.AddCommand(daemonRunCmd())
	cmd.AddCommand(daemonLogLevelCmd())
	return cmd
}

func daemonLogLevelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log-level <debug|info|warn|error>",
		Short: "Change the running daemon's log level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			var result struct {
				Level string `json:"level"`
			}
			if err := client.Call("log.level", map[string]string{"level": args[0]}, &result); err != nil {
				return err
			}
			if flagJSON {
				return printJSON(result)
			}
			fmt.Printf("Log level set to %s\n", result.Level)
			return nil
		},
	}
}

func daemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PIDFilePath()
			if daemon.IsRunning(pidPath) {
				pid, _ := daemon.ReadPIDFile(pidPath)
				return fmt.Errorf("daemon is already running (pid %d)", pid)
			}

			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}

			child := exec.Command(executable, "daemon", "run")
			child.Stdout = nil
			child.Stderr = nil
			child.Stdin = nil
			// New session so the daemon survives this terminal.
			child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

			if err := child.Start(); err != nil {
				return fmt.Errorf("spawn daemon: %w", err)
			}
			// Release rather than Wait: the parent exits immediately and the
			// daemon is adopted by init.
			if err := child.Process.Release(); err != nil {
				return fmt.Errorf("release daemon process: %w", err)
			}

			if !daemon.WaitForRunning(pidPath, startTimeout, daemon.DefaultPollInterval) {
				return fmt.Errorf("timeout waiting for daemon to start (check %s)", paths.LogFilePath())
			}

			pid, _ := daemon.ReadPIDFile(pidPath)
			fmt.Printf("Daemon started (pid %d)\n", pid)
			return nil
		},
	}
}

func daemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PIDFilePath()
			if !daemon.IsRunning(pidPath) {
				return fmt.Errorf("daemon is not running")
			}
			pid, err := daemon.ReadPIDFile(pidPath)
			if err != nil {
				return fmt.Errorf("read liveness record: %w", err)
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal process %d: %w", pid, err)
			}

			deadline := time.After(startTimeout)
			ticker := time.NewTicker(daemon.DefaultPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-deadline:
					return fmt.Errorf("timeout waiting for daemon to stop (pid %d still running)", pid)
				case <-ticker.C:
					if !daemon.IsRunning(pidPath) {
						fmt.Println("Daemon stopped")
						return nil
					}
				}
			}
		},
	}
}

func daemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			type statusResult struct {
				Running  bool   `json:"running"`
				PID      int    `json:"pid,omitempty"`
				Version  string `json:"version,omitempty"`
				UptimeMs int64  `json:"uptime_ms,omitempty"`
			}

			result := statusResult{}
			if daemon.IsRunning(paths.PIDFilePath()) {
				result.Running = true
				result.PID, _ = daemon.ReadPIDFile(paths.PIDFilePath())

				if client, err := daemon.Dial(paths.SocketPath()); err == nil {
					defer func() { _ = client.Close() }()
					var health daemon.HealthResult
					if err := client.Call("health", map[string]any{}, &health); err == nil {
						result.Version = health.Version
						result.UptimeMs = health.UptimeMs
					}
				}
			}

			if flagJSON {
				return printJSON(result)
			}
			if !result.Running {
				fmt.Printf("Daemon:  %s\n", color.RedString("not running"))
				return nil
			}
			fmt.Printf("Daemon:  %s (pid %d)\n", color.GreenString("running"), result.PID)
			if result.Version != "" {
				fmt.Printf("Version: %s\n", result.Version)
			}
			if result.UptimeMs > 0 {
				fmt.Printf("Uptime:  %s\n", (time.Duration(result.UptimeMs) * time.Millisecond).Round(time.Second))
			}
			return nil
		},
	}
}

func daemonRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			minLevel, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			log, err := logging.New(logging.Options{
				FilePath:     cfg.Log.File,
				MinLevel:     minLevel,
				MaxSize:      cfg.Log.MaxSize,
				MaxBackups:   cfg.Log.MaxBackups,
				ForceConsole: flagVerbose,
			})
			if err != nil {
				return fmt.Errorf("open log: %w", err)
			}

			server := daemon.NewServer(paths.SocketPath(), log)
			eventsServer := events.NewServer(paths.EventsSocketPath(), log)
			lifecycle := daemon.NewLifecycle(server, eventsServer, paths.PIDFilePath(), log)

			daemon.RegisterHandlers(server, daemon.RPCDeps{
				Registry: daemon.NewRegistry(),
				Events:   eventsServer,
				Log:      log,
				Version:  Version,
				Shutdown: lifecycle.Shutdown,
			})

			return lifecycle.Run(cmd.Context())
		},
	}
}
