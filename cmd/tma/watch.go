package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tmuxagents/tmux-agents/internal/daemon"
	"github.com/tmuxagents/tmux-agents/internal/logging"
	"github.com/tmuxagents/tmux-agents/internal/paths"
	"github.com/tmuxagents/tmux-agents/internal/pushchan"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events to the terminal",
		Long: `Watch subscribes to the daemon's push channel and prints each event
as it arrives. If the daemon restarts, the channel reconnects with
exponential backoff until its retry budget runs out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !daemon.IsRunning(paths.PIDFilePath()) {
				return fmt.Errorf("daemon is not running (start it with: tma daemon start)")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			minLevel := logging.LevelWarn
			if flagVerbose {
				minLevel = logging.LevelDebug
			}
			log, err := logging.New(logging.Options{MinLevel: minLevel, ForceConsole: true})
			if err != nil {
				return err
			}

			client := pushchan.New(pushchan.Options{
				SocketPath:  paths.EventsSocketPath(),
				BaseDelay:   cfg.Reconnect.BaseDelay,
				MaxAttempts: cfg.Reconnect.MaxAttempts,
				Logger:      log,
			})
			if err := client.Connect(cmd.Context()); err != nil {
				return err
			}
			defer client.Disconnect()

			unsubscribe := client.Subscribe(func(e pushchan.Event) {
				if flagJSON {
					fmt.Printf("{\"event\":%q,\"data\":%s}\n", e.Event, rawOrNull(e.Data))
					return
				}
				ts := time.Now().Format("15:04:05")
				fmt.Printf("%s  %s  %s\n", color.New(color.Faint).Sprint(ts), color.CyanString("%-16s", e.Event), rawOrNull(e.Data))
			})
			defer unsubscribe()

			if !flagJSON {
				fmt.Println("Watching daemon events (ctrl-c to stop)")
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			// Leave when interrupted, or when the channel gives up for good.
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-sigCh:
					return nil
				case <-ticker.C:
					if client.State() == pushchan.StateFailed {
						return fmt.Errorf("push channel gave up after %d reconnect attempts", cfg.Reconnect.MaxAttempts)
					}
				}
			}
		},
	}
}

func rawOrNull(data []byte) string {
	if len(data) == 0 {
		return "null"
	}
	return string(data)
}
