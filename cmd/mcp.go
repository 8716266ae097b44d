package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentmc/amc/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding-agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents report into amc natively: start and end their
own sessions, append notes and tasks, record token usage, and query
fleet status. Configure in your agent client with:

  {
    "mcpServers": {
      "amc": { "command": "amc", "args": ["mcp"] }
    }
  }

Available tools: amc_list_agents, amc_fleet_status, amc_start_session,
amc_end_session, amc_add_note, amc_add_task, amc_set_tokens,
amc_list_alerts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		return mcp.NewServer(s).ServeStdio(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
