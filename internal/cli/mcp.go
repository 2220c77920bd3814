package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/agenttools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve memory tools to an agent over MCP stdio",
	Long: `Mcp runs a Model Context Protocol server on stdin/stdout exposing
memory_append, memory_state, memory_query and memory_compact.

Logs go to stderr so they never interleave with the protocol stream.

Example agent configuration:
  {"command": "commanddeck", "args": ["mcp"]}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info("serving memory tools over stdio", "db", a.store.Path())
		return agenttools.ServeStdio(a.memory, Version)
	},
}
