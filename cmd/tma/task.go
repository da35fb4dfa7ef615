package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tmuxagents/tmux-agents/internal/daemon"
	"github.com/tmuxagents/tmux-agents/internal/resolve"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task board",
	}
	cmd.AddCommand(taskAddCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskDoneCmd())
	return cmd
}

func taskAddCmd() *cobra.Command {
	var agentPrefix string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			agentID := ""
			if agentPrefix != "" {
				agentID, err = resolveAgentID(agentPrefix)
				if err != nil {
					return err
				}
			}

			var task daemon.Task
			params := map[string]string{"title": args[0], "agent_id": agentID}
			if err := client.Call("task.add", params, &task); err != nil {
				return err
			}
			if flagJSON {
				return printJSON(task)
			}
			fmt.Printf("Added %s: %s\n", task.ID, task.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentPrefix, "agent", "", "Assign to an agent (accepts a unique id prefix)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := listTasks()
			if err != nil {
				return err
			}
			if !all {
				open := tasks[:0]
				for _, task := range tasks {
					if task.Status == daemon.TaskStatusOpen {
						open = append(open, task)
					}
				}
				tasks = open
			}
			if flagJSON {
				return printJSON(map[string]any{"tasks": tasks})
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks")
				return nil
			}
			for _, task := range tasks {
				mark := " "
				if task.Status == daemon.TaskStatusDone {
					mark = color.GreenString("✓")
				}
				line := fmt.Sprintf("[%s] %s  %s", mark, task.ID, task.Title)
				if task.AgentID != "" {
					line += color.New(color.Faint).Sprintf("  (%s)", task.AgentID)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include completed tasks")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done (accepts a unique id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			id, err := resolveTaskID(args[0])
			if err != nil {
				return err
			}

			var task daemon.Task
			if err := client.Call("task.done", map[string]string{"id": id}, &task); err != nil {
				return err
			}
			if flagJSON {
				return printJSON(task)
			}
			fmt.Printf("Done: %s\n", task.Title)
			return nil
		},
	}
}

func listTasks() ([]daemon.Task, error) {
	client, err := dialDaemon()
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	var list struct {
		Tasks []daemon.Task `json:"tasks"`
	}
	if err := client.Call("task.list", map[string]any{}, &list); err != nil {
		return nil, err
	}
	return list.Tasks, nil
}

func resolveTaskID(prefix string) (string, error) {
	tasks, err := listTasks()
	if err != nil {
		return "", err
	}
	items := make([]resolve.Item, len(tasks))
	for i, task := range tasks {
		items[i] = resolve.Item(task.ID)
	}
	return resolve.Prefix(items, prefix)
}
