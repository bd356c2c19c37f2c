// Package extconform holds the normalization and canonicalization
// primitives used to compare extension log streams (internal/extlog's
// tests diff two logs through them): stamping out non-deterministic
// fields, stripping ANSI, rewriting cwd-rooted paths, and grouping
// records for diffing.
package extconform

import (
	"regexp"
	"strings"
)

// Placeholders substituted for known non-deterministic fields.
const (
	PlaceholderTS         = "<ts>"
	PlaceholderHost       = "<host>"
	PlaceholderSessionID  = "<session_id>"
	PlaceholderRunID      = "<run_id>"
	PlaceholderArtifactID = "<artifact_id>"
	PlaceholderTraceID    = "<trace_id>"
	PlaceholderSpanID     = "<span_id>"
)

var ansiRegexp = regexp.MustCompile("\x1b\\[[0-9;]*[A-Za-z]")

// NormalizeLogLine normalizes one decoded pi.ext.log.v1 record in place so
// two runs produce byte-identical JSON once re-marshaled: known dynamic
// fields (ts, correlation ids, source host/pid) are replaced with
// placeholders and every string value has ANSI escapes stripped and any
// occurrence of cwd rewritten to "<cwd>". Key ordering needs no separate
// canonicalization step: encoding/json already sorts map[string]any keys
// alphabetically on Marshal, unlike serde_json.
func NormalizeLogLine(value map[string]any, cwd string) map[string]any {
	normalizeKnownDynamicFields(value)
	normalizeStringsIn(value, cwd)
	return value
}

func normalizeKnownDynamicFields(value map[string]any) {
	if _, ok := value["ts"].(string); ok {
		value["ts"] = PlaceholderTS
	}
	if correlation, ok := value["correlation"].(map[string]any); ok {
		replaceStringField(correlation, "session_id", PlaceholderSessionID)
		replaceStringField(correlation, "run_id", PlaceholderRunID)
		replaceStringField(correlation, "artifact_id", PlaceholderArtifactID)
		replaceStringField(correlation, "trace_id", PlaceholderTraceID)
		replaceStringField(correlation, "span_id", PlaceholderSpanID)
	}
	if source, ok := value["source"].(map[string]any); ok {
		replaceStringField(source, "host", PlaceholderHost)
		if _, ok := source["pid"].(float64); ok {
			source["pid"] = float64(0)
		}
	}
}

func replaceStringField(m map[string]any, key, replacement string) {
	if _, ok := m[key].(string); ok {
		m[key] = replacement
	}
}

func normalizeStringsIn(value any, cwd string) {
	switch v := value.(type) {
	case map[string]any:
		for k, item := range v {
			if s, ok := item.(string); ok {
				v[k] = normalizeString(s, cwd)
			} else {
				normalizeStringsIn(item, cwd)
			}
		}
	case []any:
		for i, item := range v {
			if s, ok := item.(string); ok {
				v[i] = normalizeString(s, cwd)
			} else {
				normalizeStringsIn(item, cwd)
			}
		}
	}
}

func normalizeString(s, cwd string) string {
	out := ansiRegexp.ReplaceAllString(s, "")
	if cwd != "" {
		out = strings.ReplaceAll(out, cwd, "<cwd>")
		out = strings.ReplaceAll(out, strings.ReplaceAll(cwd, "/", `\`), "<cwd>")
	}
	return out
}
