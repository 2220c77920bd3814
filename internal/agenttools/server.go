package agenttools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/swamp-dev/commanddeck/internal/memory"
)

const instructions = `Command Deck keeps a compact, conflict-resolved memory per board.
Use memory_query before starting work to recall decisions, risks, and next steps.
Record durable facts with memory_append using a stable memory_key and a bucket:
ct (constraints), dec (decisions), trb (trouble), lrn (learnings), nx (next), ref (references).
Run memory_compact when memory grows past its budgets.`

// NewServer creates an MCP server with the memory tools registered.
func NewServer(mem *memory.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"commanddeck",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	appendTool := NewAppendTool(mem)
	s.AddTool(appendTool.Definition(), appendTool.Handle)

	stateTool := NewStateTool(mem)
	s.AddTool(stateTool.Definition(), stateTool.Handle)

	queryTool := NewQueryTool(mem)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	compactTool := NewCompactTool(mem)
	s.AddTool(compactTool.Definition(), compactTool.Handle)

	return s
}

// ServeStdio serves the memory tools over stdin/stdout until the client
// disconnects.
func ServeStdio(mem *memory.Service, version string) error {
	return server.ServeStdio(NewServer(mem, version))
}
