// Command tma is the front end for the tmux-agents daemon: it starts and
// stops the daemon, manages agents and tasks over the control socket, and
// tails the push channel.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/tmuxagents/tmux-agents/internal/config"
	"github.com/tmuxagents/tmux-agents/internal/daemon"
	"github.com/tmuxagents/tmux-agents/internal/paths"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagJSON    bool
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tma",
		Short: "Control plane for tmux-hosted AI agents",
		Long: `tma talks to a per-user background daemon that tracks AI agent
sessions and their task board. State lives in the daemon; the CLI is a
thin client over a unix control socket plus a live push channel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Debug output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("tma v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(logsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dialDaemon checks liveness first so the user gets "daemon is not running"
// instead of a raw connection error, then opens the control socket.
func dialDaemon() (*daemon.Client, error) {
	if !daemon.IsRunning(paths.PIDFilePath()) {
		return nil, fmt.Errorf("daemon is not running (start it with: tma daemon start)")
	}
	return daemon.Dial(paths.SocketPath())
}

// loadConfig wraps config.Load so every command reports config problems the
// same way.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
