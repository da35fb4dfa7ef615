package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tmuxagents/tmux-agents/internal/daemon"
	"github.com/tmuxagents/tmux-agents/internal/resolve"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage registered agents",
	}
	cmd.AddCommand(agentAddCmd())
	cmd.AddCommand(agentListCmd())
	cmd.AddCommand(agentRemoveCmd())
	return cmd
}

func agentAddCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			var agent daemon.Agent
			params := map[string]string{"name": args[0], "session": session}
			if err := client.Call("agent.register", params, &agent); err != nil {
				return err
			}
			if flagJSON {
				return printJSON(agent)
			}
			fmt.Printf("Registered %s (%s)\n", agent.Name, agent.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "tmux session hosting the agent")
	return cmd
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := listAgents()
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]any{"agents": agents})
			}
			if len(agents) == 0 {
				fmt.Println("No agents registered")
				return nil
			}
			for _, agent := range agents {
				line := fmt.Sprintf("%s  %-12s %s", agent.ID, agent.Name, agent.Status)
				if agent.Session != "" {
					line += "  [" + agent.Session + "]"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func agentRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an agent (accepts a unique id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			id, err := resolveAgentID(args[0])
			if err != nil {
				return err
			}

			var removed daemon.Agent
			if err := client.Call("agent.remove", map[string]string{"id": id}, &removed); err != nil {
				return err
			}
			if flagJSON {
				return printJSON(removed)
			}
			fmt.Printf("Removed %s (%s)\n", removed.Name, color.New(color.Faint).Sprint(removed.ID))
			return nil
		},
	}
}

func listAgents() ([]daemon.Agent, error) {
	client, err := dialDaemon()
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	var list struct {
		Agents []daemon.Agent `json:"agents"`
	}
	if err := client.Call("agent.list", map[string]any{}, &list); err != nil {
		return nil, err
	}
	return list.Agents, nil
}

// resolveAgentID expands a user-supplied prefix against a fresh listing.
func resolveAgentID(prefix string) (string, error) {
	agents, err := listAgents()
	if err != nil {
		return "", err
	}
	items := make([]resolve.Item, len(agents))
	for i, agent := range agents {
		items[i] = resolve.Item(agent.ID)
	}
	return resolve.Prefix(items, prefix)
}
