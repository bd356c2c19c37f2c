// Package extlog emits the pi.ext.log.v1 JSONL schema extensions and their
// host write structured log lines to. Records share the
// normalization/canonicalization contract in internal/extconform so two
// runs' logs can be diffed deterministically.
package extlog

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// SchemaV1 is the schema tag every record carries.
const SchemaV1 = "pi.ext.log.v1"

// Correlation carries whichever identifiers are in scope for a log line;
// fields are omitted when empty.
type Correlation struct {
	ExtensionID    string `json:"extension_id,omitempty"`
	ScenarioID     string `json:"scenario_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	RunID          string `json:"run_id,omitempty"`
	ArtifactID     string `json:"artifact_id,omitempty"`
	TraceID        string `json:"trace_id,omitempty"`
	SpanID         string `json:"span_id,omitempty"`
	ToolCallID     string `json:"tool_call_id,omitempty"`
	SlashCommandID string `json:"slash_command_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	HostCallID     string `json:"host_call_id,omitempty"`
	RPCID          string `json:"rpc_id,omitempty"`
}

// Source identifies the process that emitted a record.
type Source struct {
	Component string `json:"component,omitempty"`
	Host      string `json:"host,omitempty"`
	PID       int    `json:"pid,omitempty"`
}

// Record is one pi.ext.log.v1 line.
type Record struct {
	Schema      string         `json:"schema"`
	TS          string         `json:"ts"`
	Level       string         `json:"level"`
	Event       string         `json:"event"`
	Message     string         `json:"message,omitempty"`
	Correlation *Correlation   `json:"correlation,omitempty"`
	Source      *Source        `json:"source,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Logger appends pi.ext.log.v1 records to an io.Writer, one JSON object per
// line, serializing concurrent Emit calls.
type Logger struct {
	mu        sync.Mutex
	w         io.Writer
	component string
	host      string
	pid       int
	now       func() time.Time
}

// New builds a Logger stamping every record's source with component, the
// local hostname, and this process's pid.
func New(w io.Writer, component string) *Logger {
	host, _ := os.Hostname()
	return &Logger{
		w:         w,
		component: component,
		host:      host,
		pid:       os.Getpid(),
		now:       time.Now,
	}
}

// Emit writes one record. correlation and data may be nil.
func (l *Logger) Emit(level, event, message string, correlation *Correlation, data map[string]any) error {
	rec := Record{
		Schema:      SchemaV1,
		TS:          l.now().UTC().Format(time.RFC3339Nano),
		Level:       level,
		Event:       event,
		Message:     message,
		Correlation: correlation,
		Source: &Source{
			Component: l.component,
			Host:      l.host,
			PID:       l.pid,
		},
		Data: data,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(line)
	return err
}
