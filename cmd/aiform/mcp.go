// ABOUTME: CLI command for starting the MCP server.
// ABOUTME: Runs a stdio MCP server that drives guided sessions and reads the ledger.
package main

import (
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server communicates via stdin/stdout. It runs one guided engine, so an
assistant can walk you through a workout set by set.

CLAUDE DESKTOP CONFIGURATION:

  {
    "mcpServers": {
      "aiform": {
        "command": "aiform",
        "args": ["mcp"]
      }
    }
  }

AVAILABLE TOOLS:

  start_session        Start a guided workout from a plan
  mark_set_done        Mark the current set as performed
  submit_observation   Log the set with an optional note, start rest
  skip_rest            Skip the rest countdown
  finish_session       Finish the active session
  session_state        Current guided state
  close_day            Close today with optional totals
  day_status           Whether a day is closed
  get_session          Session with sets and notes
  list_sessions        Recent sessions
  set_timezone         Select the zone that defines today

AVAILABLE RESOURCES:

  aiform://today             Today's status, sessions, and engine state
  aiform://sessions/recent   Last 10 sessions with sets`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(repo, prefStore, mcp.WithLogger(logger))
		if err != nil {
			return err
		}
		defer server.Close()

		return server.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
