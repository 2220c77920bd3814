package agenttools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/swamp-dev/commanddeck/internal/memory"
)

// intArg extracts an integer argument. JSON numbers arrive as float64; NaN
// falls back to the default and everything else is clamped into int32 range
// before conversion.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok || math.IsNaN(v) {
		return defaultVal
	}
	return int(max(math.MinInt32, min(v, math.MaxInt32)))
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// valueArg returns the memory payload for key. Strings holding JSON are
// used as-is; other strings become JSON strings. Structured arguments are
// re-encoded. A missing argument is nil.
func valueArg(req mcp.CallToolRequest, key string) (memory.Payload, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, nil
	}
	if s, isString := raw.(string); isString && json.Valid([]byte(s)) {
		return memory.Payload(s), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("'%s' is not encodable as JSON: %v", key, err)
	}
	return memory.Payload(data), nil
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
