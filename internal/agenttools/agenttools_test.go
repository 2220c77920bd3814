package agenttools

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swamp-dev/commanddeck/internal/memory"
	"github.com/swamp-dev/commanddeck/internal/store"
)

func newTestService(t *testing.T) *memory.Service {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b := &store.Board{Title: "Launch", CreatedAt: 1}
	require.NoError(t, s.Update(ctx, func(tx *store.Tx) error { return tx.CreateBoard(b) }))

	mem, err := memory.NewService(ctx, s, memory.Options{})
	require.NoError(t, err)
	return mem
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func call(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := handle(context.Background(), makeReq(args))
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestDefinitions(t *testing.T) {
	mem := newTestService(t)
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewAppendTool(mem).Definition(), "memory_append", []string{"memory_key", "source_type"}},
		{NewStateTool(mem).Definition(), "memory_state", nil},
		{NewQueryTool(mem).Definition(), "memory_query", nil},
		{NewCompactTool(mem).Definition(), "memory_compact", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.def.Name)
			assert.Contains(t, tt.def.InputSchema.Properties, "board_id")
			assert.ElementsMatch(t, tt.required, tt.def.InputSchema.Required)
		})
	}
}

func TestAppendTool(t *testing.T) {
	mem := newTestService(t)
	tool := NewAppendTool(mem)

	t.Run("missing key", func(t *testing.T) {
		res := call(t, tool.Handle, map[string]any{"source_type": "user", "value": "1"})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "memory_key")
	})

	t.Run("forbidden source", func(t *testing.T) {
		res := call(t, tool.Handle, map[string]any{"memory_key": "k", "source_type": "agent", "value": "1"})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "sourceType must be one of")
	})

	t.Run("json text value", func(t *testing.T) {
		res := call(t, tool.Handle, map[string]any{
			"memory_key": "risk1", "source_type": "user", "value": `{"summary":"A"}`,
			"bucket": "trb", "tags": "auth, ,db", "ttl_seconds": float64(60),
		})
		require.False(t, res.IsError, resultText(res))
		assert.Contains(t, resultText(res), "Memory upsert applied: risk1")
	})

	t.Run("structured value", func(t *testing.T) {
		res := call(t, tool.Handle, map[string]any{
			"memory_key": "next1", "source_type": "operator", "value": map[string]any{"summary": "ship"},
		})
		require.False(t, res.IsError, resultText(res))
	})

	t.Run("plain text value", func(t *testing.T) {
		res := call(t, tool.Handle, map[string]any{
			"memory_key": "note1", "source_type": "user", "value": "remember the milk",
		})
		require.False(t, res.IsError, resultText(res))
	})

	state, err := mem.State(context.Background(), "", false, 0)
	require.NoError(t, err)
	values := map[string]string{}
	for _, o := range state.Objects {
		values[o.MemoryKey] = string(o.Value)
		if o.MemoryKey == "risk1" {
			assert.Equal(t, "trb", o.Bucket)
			assert.Equal(t, []string{"auth", "db"}, o.Tags)
			require.NotNil(t, o.ExpiresAt)
		}
	}
	assert.JSONEq(t, `{"summary":"A"}`, values["risk1"])
	assert.JSONEq(t, `{"summary":"ship"}`, values["next1"])
	assert.JSONEq(t, `"remember the milk"`, values["note1"])
}

func TestStateAndQueryTools(t *testing.T) {
	mem := newTestService(t)
	appendTool := NewAppendTool(mem)
	for _, args := range []map[string]any{
		{"memory_key": "a", "source_type": "user", "value": `"alpha"`, "tags": "x"},
		{"memory_key": "b", "source_type": "user", "value": `"beta"`, "tags": "y"},
		{"memory_key": "b", "source_type": "user", "event_type": "delete"},
	} {
		res := call(t, appendTool.Handle, args)
		require.False(t, res.IsError, resultText(res))
	}

	var state memory.StateResult
	res := call(t, NewStateTool(mem).Handle, map[string]any{})
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &state))
	require.Len(t, state.Objects, 1)
	assert.Equal(t, "a", state.Objects[0].MemoryKey)

	res = call(t, NewStateTool(mem).Handle, map[string]any{"include_deleted": true})
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &state))
	assert.Len(t, state.Objects, 2)

	var query memory.QueryResult
	res = call(t, NewQueryTool(mem).Handle, map[string]any{"tag": "x"})
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &query))
	assert.Equal(t, 1, query.Count)

	res = call(t, NewQueryTool(mem).Handle, map[string]any{"board_id": "missing"})
	assert.True(t, res.IsError)
}

func TestCompactTool(t *testing.T) {
	mem := newTestService(t)
	res := call(t, NewAppendTool(mem).Handle, map[string]any{"memory_key": "a", "source_type": "user", "value": "1"})
	require.False(t, res.IsError, resultText(res))

	var report memory.CompactReport
	res = call(t, NewCompactTool(mem).Handle, map[string]any{"max_objects": float64(1)})
	require.False(t, res.IsError, resultText(res))
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &report))
	assert.Equal(t, 25, report.Budgets.MaxObjects)
	assert.Equal(t, memory.DefaultBudgets().MaxEvents, report.Budgets.MaxEvents)
	assert.Equal(t, 1, report.After.ObjectCount)
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, NewServer(newTestService(t), "test"))
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"missing", map[string]any{}, 7},
		{"not a number", map[string]any{"n": "12"}, 7},
		{"whole", map[string]any{"n": float64(12)}, 12},
		{"fraction truncates", map[string]any{"n": 12.9}, 12},
		{"negative", map[string]any{"n": float64(-3)}, -3},
		{"nan", map[string]any{"n": math.NaN()}, 7},
		{"huge", map[string]any{"n": 1e300}, math.MaxInt32},
		{"positive infinity", map[string]any{"n": math.Inf(1)}, math.MaxInt32},
		{"negative infinity", map[string]any{"n": math.Inf(-1)}, math.MinInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, intArg(makeReq(tt.args), "n", 7))
		})
	}
}

func TestCompactToolClampsHugeBudgets(t *testing.T) {
	mem := newTestService(t)
	res := call(t, NewCompactTool(mem).Handle, map[string]any{"max_objects": 1e300, "max_event_bytes": math.Inf(1)})
	require.False(t, res.IsError, resultText(res))

	var report memory.CompactReport
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &report))
	assert.Equal(t, 5000, report.Budgets.MaxObjects)
	assert.Equal(t, int64(16<<20), report.Budgets.MaxEventBytes)
}
