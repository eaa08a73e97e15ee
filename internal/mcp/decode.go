package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/reel/internal/errors"
)

// decode unmarshals MCP request arguments into a typed struct.
// Failures come back as INVALID_REQUEST so handlers can return them directly.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	args := req.GetArguments()
	if len(args) == 0 {
		return result, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("marshal args: %v", err))
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("unmarshal args: %v", err))
	}
	return result, nil
}
