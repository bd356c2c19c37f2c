package extconform

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNormalizesDynamicFieldsPathsAndANSI(t *testing.T) {
	cwd := "/tmp/pi_ext_conformance"
	raw := `{
		"schema": "pi.ext.log.v1",
		"ts": "2026-02-03T03:01:02.123Z",
		"level": "info",
		"event": "tool_call.start",
		"message": "opened /tmp/pi_ext_conformance/file.txt \u001b[31mERR\u001b[0m",
		"correlation": {
			"extension_id": "ext.demo",
			"scenario_id": "scn-001",
			"session_id": "sess-abc123",
			"run_id": "run-20260203-0001",
			"artifact_id": "sha256:deadbeef",
			"trace_id": "trace-xyz",
			"span_id": "span-123"
		},
		"source": { "component": "runtime", "host": "host.name", "pid": 4242 },
		"data": {
			"path": "/tmp/pi_ext_conformance/dir/sub/file.rs",
			"note": "\u001b[1mBold\u001b[0m"
		}
	}`

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	normalized := NormalizeLogLine(decoded, cwd)

	if normalized["ts"] != PlaceholderTS {
		t.Fatalf("ts = %v", normalized["ts"])
	}
	correlation := normalized["correlation"].(map[string]any)
	if correlation["session_id"] != PlaceholderSessionID {
		t.Fatalf("session_id = %v", correlation["session_id"])
	}
	if correlation["run_id"] != PlaceholderRunID {
		t.Fatalf("run_id = %v", correlation["run_id"])
	}
	if correlation["artifact_id"] != PlaceholderArtifactID {
		t.Fatalf("artifact_id = %v", correlation["artifact_id"])
	}
	if correlation["trace_id"] != PlaceholderTraceID {
		t.Fatalf("trace_id = %v", correlation["trace_id"])
	}
	if correlation["span_id"] != PlaceholderSpanID {
		t.Fatalf("span_id = %v", correlation["span_id"])
	}
	source := normalized["source"].(map[string]any)
	if source["host"] != PlaceholderHost {
		t.Fatalf("host = %v", source["host"])
	}
	if source["pid"] != float64(0) {
		t.Fatalf("pid = %v", source["pid"])
	}

	msg := normalized["message"].(string)
	if !strings.Contains(msg, "<cwd>/file.txt") {
		t.Fatalf("message = %q", msg)
	}
	if strings.Contains(msg, cwd) {
		t.Fatalf("message still contains cwd: %q", msg)
	}
	if strings.Contains(msg, "\x1b[") {
		t.Fatalf("message still contains ANSI: %q", msg)
	}
	if !strings.Contains(msg, "ERR") {
		t.Fatalf("message lost text: %q", msg)
	}

	data := normalized["data"].(map[string]any)
	path := data["path"].(string)
	if !strings.Contains(path, "<cwd>/dir/sub/file.rs") {
		t.Fatalf("path = %q", path)
	}
	if data["note"] != "Bold" {
		t.Fatalf("note = %v", data["note"])
	}
}

func TestDiffKeyPrefersMostSpecificCorrelationID(t *testing.T) {
	value := map[string]any{
		"event": "tool_call.start",
		"correlation": map[string]any{
			"scenario_id":  "scn-001",
			"tool_call_id": "tool-42",
		},
	}
	if got, want := DiffKey(value), "tool_call.start::tool_call_id:tool-42"; got != want {
		t.Fatalf("DiffKey = %q, want %q", got, want)
	}
}

func TestDiffNormalizedJSONLTreatsDynamicFieldsAsEqual(t *testing.T) {
	cwd := "/tmp/pi_ext_conformance"
	expected := `{"schema":"pi.ext.log.v1","ts":"2026-02-03T03:01:02.123Z","level":"info","event":"tool_call.start","message":"opened /tmp/pi_ext_conformance/file.txt","correlation":{"extension_id":"ext.demo","scenario_id":"scn-001","session_id":"sess-a","run_id":"run-a"},"source":{"component":"runtime","host":"a","pid":1}}`
	actual := `{"schema":"pi.ext.log.v1","ts":"2026-02-03T03:01:02.999Z","level":"info","event":"tool_call.start","message":"opened /tmp/pi_ext_conformance/file.txt","correlation":{"extension_id":"ext.demo","scenario_id":"scn-001","session_id":"sess-b","run_id":"run-b"},"source":{"component":"runtime","host":"b","pid":9999}}`

	report, err := DiffNormalizedJSONL(expected, actual, cwd)
	if err != nil {
		t.Fatalf("DiffNormalizedJSONL: %v", err)
	}
	if report != "" {
		t.Fatalf("expected no diff, got:\n%s", report)
	}
}

func TestDiffNormalizedJSONLReportsRealDifference(t *testing.T) {
	expected := `{"event":"tool_call.end","correlation":{"tool_call_id":"t1"},"data":{"status":"ok"}}`
	actual := `{"event":"tool_call.end","correlation":{"tool_call_id":"t1"},"data":{"status":"error"}}`

	report, err := DiffNormalizedJSONL(expected, actual, "")
	if err != nil {
		t.Fatalf("DiffNormalizedJSONL: %v", err)
	}
	if report == "" {
		t.Fatalf("expected a diff to be reported")
	}
	if !strings.Contains(report, "tool_call.end::tool_call_id:t1") {
		t.Fatalf("report missing diff group header: %s", report)
	}
}
