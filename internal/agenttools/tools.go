// Package agenttools exposes the board memory over MCP so agent tooling can
// read and record memory without going through HTTP.
//
// Each tool is a struct holding the memory service with a Definition that
// returns the tool schema and a Handle that serves calls. Domain failures
// are reported as tool errors, never as protocol errors.
package agenttools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/swamp-dev/commanddeck/internal/memory"
)

// AppendTool handles memory_append.
type AppendTool struct {
	mem *memory.Service
}

// NewAppendTool creates an AppendTool.
func NewAppendTool(mem *memory.Service) *AppendTool {
	return &AppendTool{mem: mem}
}

// Definition returns the MCP tool definition for memory_append.
func (t *AppendTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_append",
		mcp.WithDescription(
			"Record a memory event for a board. Upserts replace the value for a key, deletes leave a tombstone, "+
				"touches refresh a live key without changing it. Concurrent writers converge on the newest event.",
		),
		mcp.WithString("memory_key",
			mcp.Required(),
			mcp.Description("Stable key for the memory entry (e.g. risk/auth-timeouts)"),
		),
		mcp.WithString("source_type",
			mcp.Required(),
			mcp.Description("Who is writing: user, operator, or verified-system"),
		),
		mcp.WithString("event_type",
			mcp.Description("upsert (default), delete, or touch"),
		),
		mcp.WithString("value",
			mcp.Description("JSON value for upserts. Text that is not JSON is stored as a JSON string."),
		),
		mcp.WithString("bucket",
			mcp.Description("Export bucket: ct, dec, trb, lrn, nx, ref, or misc (default)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
		mcp.WithNumber("ttl_seconds",
			mcp.Description("Expire the entry this many seconds after the event (0 = never)"),
		),
		mcp.WithString("source_ref",
			mcp.Description("Free-form reference to where the fact came from"),
		),
		mcp.WithString("board_id",
			mcp.Description("Board id (default: active board)"),
		),
	)
}

// Handle processes the memory_append tool call.
func (t *AppendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("memory_key", "")
	if strings.TrimSpace(key) == "" {
		return mcp.NewToolResultError("'memory_key' is required"), nil
	}

	value, err := valueArg(req, "value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.mem.Append(ctx, memory.AppendInput{
		BoardID:    req.GetString("board_id", ""),
		MemoryKey:  key,
		EventType:  req.GetString("event_type", ""),
		SourceType: req.GetString("source_type", ""),
		Bucket:     req.GetString("bucket", ""),
		Value:      value,
		Tags:       splitTags(req.GetString("tags", "")),
		TTLSeconds: intArg(req, "ttl_seconds", 0),
		SourceRef:  req.GetString("source_ref", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("append failed: %v", err)), nil
	}

	verdict := "applied"
	if !res.Applied {
		verdict = "recorded (a newer event already holds this key)"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s %s: %s\nEvent: %s", res.EventType, verdict, res.MemoryKey, res.EventID)), nil
}

// StateTool handles memory_state.
type StateTool struct {
	mem *memory.Service
}

// NewStateTool creates a StateTool.
func NewStateTool(mem *memory.Service) *StateTool {
	return &StateTool{mem: mem}
}

// Definition returns the MCP tool definition for memory_state.
func (t *StateTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_state",
		mcp.WithDescription("List the current memory entries of a board, newest first, with store statistics."),
		mcp.WithString("board_id",
			mcp.Description("Board id (default: active board)"),
		),
		mcp.WithBoolean("include_deleted",
			mcp.Description("Include tombstoned entries (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max entries (default: %d, max: %d)", memory.DefaultStateLimit, memory.MaxStateLimit)),
		),
	)
}

// Handle processes the memory_state tool call.
func (t *StateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.mem.State(ctx,
		req.GetString("board_id", ""),
		boolArg(req, "include_deleted", false),
		intArg(req, "limit", 0),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("state failed: %v", err)), nil
	}
	return jsonResult(res)
}

// QueryTool handles memory_query.
type QueryTool struct {
	mem *memory.Service
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(mem *memory.Service) *QueryTool {
	return &QueryTool{mem: mem}
}

// Definition returns the MCP tool definition for memory_query.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_query",
		mcp.WithDescription("Search live memory entries by text, source, bucket, or exact tag."),
		mcp.WithString("q",
			mcp.Description("Substring matched against key, value, and tags"),
		),
		mcp.WithString("source_type",
			mcp.Description("Only entries last written by this source"),
		),
		mcp.WithString("bucket",
			mcp.Description("Only entries in this bucket"),
		),
		mcp.WithString("tag",
			mcp.Description("Only entries carrying this exact tag"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max matches (default: %d, max: %d)", memory.DefaultQueryLimit, memory.MaxQueryLimit)),
		),
		mcp.WithString("board_id",
			mcp.Description("Board id (default: active board)"),
		),
	)
}

// Handle processes the memory_query tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.mem.Query(ctx, memory.QueryInput{
		BoardID:    req.GetString("board_id", ""),
		Text:       req.GetString("q", ""),
		SourceType: req.GetString("source_type", ""),
		Bucket:     req.GetString("bucket", ""),
		Tag:        req.GetString("tag", ""),
		Limit:      intArg(req, "limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(res)
}

// CompactTool handles memory_compact.
type CompactTool struct {
	mem *memory.Service
}

// NewCompactTool creates a CompactTool.
func NewCompactTool(mem *memory.Service) *CompactTool {
	return &CompactTool{mem: mem}
}

// Definition returns the MCP tool definition for memory_compact.
func (t *CompactTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_compact",
		mcp.WithDescription(
			"Enforce memory budgets on a board: drop expired entries, then the oldest entries and events "+
				"beyond the count and byte budgets. Omitted budgets use the configured values.",
		),
		mcp.WithString("board_id",
			mcp.Description("Board id (default: active board)"),
		),
		mcp.WithNumber("max_objects", mcp.Description("Entry count budget")),
		mcp.WithNumber("max_events", mcp.Description("Event count budget")),
		mcp.WithNumber("max_object_bytes", mcp.Description("Entry byte budget")),
		mcp.WithNumber("max_event_bytes", mcp.Description("Event byte budget")),
	)
}

// Handle processes the memory_compact tool call.
func (t *CompactTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	overrides := memory.Budgets{
		MaxObjects:     intArg(req, "max_objects", 0),
		MaxEvents:      intArg(req, "max_events", 0),
		MaxObjectBytes: int64(intArg(req, "max_object_bytes", 0)),
		MaxEventBytes:  int64(intArg(req, "max_event_bytes", 0)),
	}
	report, err := t.mem.Compact(ctx, req.GetString("board_id", ""), &overrides)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compact failed: %v", err)), nil
	}
	return jsonResult(report)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
