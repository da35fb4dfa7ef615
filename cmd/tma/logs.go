package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmuxagents/tmux-agents/internal/paths"
)

func logsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines <= 0 {
				return nil
			}
			file, err := os.Open(paths.LogFilePath())
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no daemon log at %s", paths.LogFilePath())
				}
				return err
			}
			defer func() { _ = file.Close() }()

			// Ring buffer over the scan; the active log is bounded by the
			// rotation threshold so one pass is fine.
			tail := make([]string, 0, lines)
			scanner := bufio.NewScanner(file)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if len(tail) == lines {
					copy(tail, tail[1:])
					tail = tail[:lines-1]
				}
				tail = append(tail, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read daemon log: %w", err)
			}

			for _, line := range tail {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to print")
	return cmd
}
