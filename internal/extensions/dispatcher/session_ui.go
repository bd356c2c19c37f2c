package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/openclaude/openclaude/internal/jsruntime"
)

type sessionRequest struct {
	Op         string          `json:"op"`
	Name       string          `json:"name"`
	CustomType string          `json:"customType"`
	Data       json.RawMessage `json:"data"`
}

// dispatchSession delegates to the injected Session collaborator
// (get_state, get_messages, set_name, append_custom_entry).
func (d *Dispatcher) dispatchSession(payload json.RawMessage) jsruntime.Outcome {
	if d.Session == nil {
		return jsruntime.Error("invalid_request", "no session bound to this extension")
	}
	var req sessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return jsruntime.Error("invalid_request", fmt.Sprintf("invalid session payload: %v", err))
	}

	switch req.Op {
	case "get_state":
		state, err := d.Session.GetState()
		if err != nil {
			return jsruntime.Error("internal", err.Error())
		}
		return jsruntime.Outcome{Result: state}
	case "get_messages":
		msgs, err := d.Session.GetMessages()
		if err != nil {
			return jsruntime.Error("internal", err.Error())
		}
		return jsruntime.Outcome{Result: msgs}
	case "set_name":
		if err := d.Session.SetName(req.Name); err != nil {
			return jsruntime.Error("internal", err.Error())
		}
		return jsruntime.Success(nil)
	case "append_custom_entry":
		if err := d.Session.AppendCustomEntry(req.CustomType, req.Data); err != nil {
			return jsruntime.Error("internal", err.Error())
		}
		return jsruntime.Success(nil)
	default:
		return jsruntime.Error("invalid_request", fmt.Sprintf("unknown session op: %s", req.Op))
	}
}

// dispatchHTTP implements HostcallKind::Http by delegating wholesale to the
// injected HTTPHandler; the payload/response shapes are the connector's
// contract, not the dispatcher's.
func (d *Dispatcher) dispatchHTTP(payload json.RawMessage) jsruntime.Outcome {
	if d.HTTP == nil {
		return jsruntime.Error("invalid_request", "no http connector configured")
	}
	result, err := d.HTTP.Do(payload)
	if err != nil {
		return jsruntime.Error("http_error", err.Error())
	}
	return jsruntime.Outcome{Result: result}
}

// dispatchUI answers a ui hostcall. A nil UI handler resolves to null
// rather than erroring.
func (d *Dispatcher) dispatchUI(payload json.RawMessage) jsruntime.Outcome {
	if d.UI == nil {
		return jsruntime.Success(nil)
	}
	result, err := d.UI.RequestUI(payload)
	if err != nil {
		return jsruntime.Error("internal", err.Error())
	}
	return jsruntime.Outcome{Result: result}
}
