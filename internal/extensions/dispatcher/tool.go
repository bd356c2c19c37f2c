package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openclaude/openclaude/internal/jsruntime"
)

type toolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// dispatchTool handles a tool hostcall: look the
// tool up in the registry, run it, and box its ToolOutput as the
// promise's resolved value.
func (d *Dispatcher) dispatchTool(ctx context.Context, callID int64, payload json.RawMessage) jsruntime.Outcome {
	var req toolRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return jsruntime.Error("invalid_request", fmt.Sprintf("invalid tool payload: %v", err))
	}

	tool, ok := d.Registry.Lookup(req.Name)
	if !ok {
		return jsruntime.Error("invalid_request", fmt.Sprintf("unknown tool: %s", req.Name))
	}

	args := req.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	idStr := fmt.Sprintf("%d", callID)
	output, err := tool.Execute(ctx, idStr, args, nil, d.Registry.ToolContext())
	if err != nil {
		return jsruntime.Error("tool_error", err.Error())
	}

	data, err := json.Marshal(output)
	if err != nil {
		return jsruntime.Error("internal", fmt.Sprintf("serialize tool output: %v", err))
	}
	return jsruntime.Outcome{Result: data}
}
