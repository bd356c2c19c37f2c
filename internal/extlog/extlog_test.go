package extlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/openclaude/openclaude/internal/extconform"
)

func TestEmitWritesOneJSONLLinePerCall(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "runtime")
	l.now = func() time.Time { return time.Date(2026, 2, 3, 3, 1, 2, 123000000, time.UTC) }

	if err := l.Emit("info", "tool_call.start", "opened file", &Correlation{ToolCallID: "tool-1"}, nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := l.Emit("info", "tool_call.end", "closed file", &Correlation{ToolCallID: "tool-1"}, map[string]any{"code": 0}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var rec Record
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Schema != SchemaV1 {
		t.Fatalf("schema = %q", rec.Schema)
	}
	if rec.Correlation == nil || rec.Correlation.ToolCallID != "tool-1" {
		t.Fatalf("correlation = %+v", rec.Correlation)
	}
	if rec.Source == nil || rec.Source.Component != "runtime" {
		t.Fatalf("source = %+v", rec.Source)
	}
}

func TestEmittedRecordsNormalizeToEqualAcrossRuns(t *testing.T) {
	var bufA, bufB bytes.Buffer
	la := New(&bufA, "runtime")
	la.host, la.pid = "host-a", 111
	la.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	lb := New(&bufB, "runtime")
	lb.host, lb.pid = "host-b", 222
	lb.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC) }

	corr := &Correlation{ToolCallID: "tool-1", SessionID: "sess-a"}
	if err := la.Emit("info", "tool_call.start", "ok", corr, nil); err != nil {
		t.Fatalf("Emit a: %v", err)
	}
	corrB := &Correlation{ToolCallID: "tool-1", SessionID: "sess-b"}
	if err := lb.Emit("info", "tool_call.start", "ok", corrB, nil); err != nil {
		t.Fatalf("Emit b: %v", err)
	}

	report, err := extconform.DiffNormalizedJSONL(bufA.String(), bufB.String(), "")
	if err != nil {
		t.Fatalf("DiffNormalizedJSONL: %v", err)
	}
	if report != "" {
		t.Fatalf("expected no diff after normalization, got:\n%s", report)
	}
}
