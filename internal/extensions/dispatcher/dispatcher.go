// Package dispatcher routes hostcall requests drained from a jsruntime.Runtime
// to Go implementations: tools, process execution, HTTP, session access, and
// UI prompts. It owns no strong reference into the runtime beyond what
// draining/completing requires: requests and outcomes cross as values.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaude/openclaude/internal/extlog"
	"github.com/openclaude/openclaude/internal/jsruntime"
	"github.com/openclaude/openclaude/internal/tools"
)

// tracer emits one span per dispatched hostcall. With no SpanProcessor
// registered by the host process this is otel's no-op tracer, so
// dispatch has zero overhead until a caller wires an exporter.
var tracer = otel.Tracer("github.com/openclaude/openclaude/internal/extensions/dispatcher")

// Session is the subset of session access pi.session() hostcalls need.
type Session interface {
	GetState() (json.RawMessage, error)
	GetMessages() (json.RawMessage, error)
	SetName(name string) error
	AppendCustomEntry(customType string, data json.RawMessage) error
}

// UIHandler answers pi.ui() prompts. Returning a nil result with a nil error
// means the host declined to show anything.
type UIHandler interface {
	RequestUI(request json.RawMessage) (json.RawMessage, error)
}

// HTTPHandler answers pi.http() requests.
type HTTPHandler interface {
	Do(request json.RawMessage) (json.RawMessage, error)
}

// Dispatcher dispatches hostcall requests for one extension session.
type Dispatcher struct {
	Registry *tools.Registry
	HTTP     HTTPHandler
	Session  Session
	UI       UIHandler
	CWD      string

	// Logger, when set, emits one pi.ext.log.v1 record (internal/extlog)
	// per dispatched hostcall, correlated by host_call_id. Nil by default
	// so dispatching stays free of I/O until a caller opts in.
	Logger *extlog.Logger
}

// New builds a Dispatcher. HTTP, Session, and UI may be nil. With a nil
// HTTP or Session, hostcalls needing them fail with invalid_request rather
// than panicking; with a nil UI, ui hostcalls resolve to null.
func New(registry *tools.Registry, http HTTPHandler, session Session, ui UIHandler, cwd string) *Dispatcher {
	return &Dispatcher{Registry: registry, HTTP: http, Session: session, UI: ui, CWD: cwd}
}

// WithLogger attaches an extlog.Logger that records one line per dispatched
// hostcall. Returns d for chaining.
func (d *Dispatcher) WithLogger(logger *extlog.Logger) *Dispatcher {
	d.Logger = logger
	return d
}

// Pump drains every pending hostcall request from rt and dispatches each to
// completion, returning how many it handled.
func (d *Dispatcher) Pump(ctx context.Context, rt *jsruntime.Runtime) int {
	reqs := rt.DrainHostcallRequests()
	for _, req := range reqs {
		d.DispatchAndComplete(ctx, rt, req)
	}
	return len(reqs)
}

// DispatchAndComplete resolves one request's hostcall, guaranteeing exactly
// one CompleteHostcall call even if the handler panics.
func (d *Dispatcher) DispatchAndComplete(ctx context.Context, rt *jsruntime.Runtime, req jsruntime.HostcallRequest) {
	ctx, span := tracer.Start(ctx, "dispatcher.hostcall",
		trace.WithAttributes(
			attribute.String("hostcall.kind", string(req.Kind)),
			attribute.Int64("hostcall.call_id", req.CallID),
		))
	defer span.End()

	outcome := d.dispatch(ctx, req)
	if outcome.Err != nil {
		span.SetAttributes(attribute.String("hostcall.error_code", outcome.Err.Code))
	}
	d.logOutcome(req, outcome)
	_ = rt.CompleteHostcall(req.CallID, outcome)
}

// logOutcome emits one pi.ext.log.v1 line per dispatched hostcall when a
// Logger is attached; a nil Logger keeps dispatch free of log I/O.
func (d *Dispatcher) logOutcome(req jsruntime.HostcallRequest, outcome jsruntime.Outcome) {
	if d.Logger == nil {
		return
	}
	correlation := &extlog.Correlation{HostCallID: fmt.Sprintf("%d", req.CallID)}
	if outcome.Err != nil {
		data := map[string]any{"kind": req.Kind, "code": outcome.Err.Code}
		_ = d.Logger.Emit("error", "hostcall_error", outcome.Err.Message, correlation, data)
		return
	}
	_ = d.Logger.Emit("info", "hostcall_complete", "", correlation, map[string]any{"kind": req.Kind})
}

func (d *Dispatcher) dispatch(ctx context.Context, req jsruntime.HostcallRequest) (outcome jsruntime.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = jsruntime.Error("internal", fmt.Sprintf("hostcall handler panicked: %v", r))
		}
	}()

	switch req.Kind {
	case jsruntime.KindTool:
		return d.dispatchTool(ctx, req.CallID, req.Payload)
	case jsruntime.KindExec:
		return d.dispatchExecPayload(req.Payload)
	case jsruntime.KindHTTP:
		return d.dispatchHTTP(req.Payload)
	case jsruntime.KindSession:
		return d.dispatchSession(req.Payload)
	case jsruntime.KindUI:
		return d.dispatchUI(req.Payload)
	default:
		return jsruntime.Error("invalid_request", fmt.Sprintf("unsupported hostcall kind: %s", req.Kind))
	}
}
