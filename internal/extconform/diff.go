package extconform

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// correlationPriority is the order diffKey tries correlation id fields in,
// most specific first. Grounded on ext_conformance.rs's preferred_correlation_id
// chain (tool_call_id, slash_command_id, event_id, host_call_id, rpc_id,
// scenario_id).
var correlationPriority = []string{
	"tool_call_id", "slash_command_id", "event_id", "host_call_id", "rpc_id", "scenario_id",
}

// DiffKey groups a normalized record for diffing: "<event>::<kind>:<id>",
// preferring the most specific correlation id present.
func DiffKey(value map[string]any) string {
	event, _ := value["event"].(string)
	if event == "" {
		event = "<missing>"
	}
	kind, id := "id", "<missing>"
	if correlation, ok := value["correlation"].(map[string]any); ok {
		for _, key := range correlationPriority {
			if v, ok := correlation[key].(string); ok {
				if trimmed := strings.TrimSpace(v); trimmed != "" {
					kind, id = key, trimmed
					break
				}
			}
		}
	}
	return fmt.Sprintf("%s::%s:%s", event, kind, id)
}

// ParseAndNormalizeJSONL decodes every non-blank line of input as JSON and
// normalizes it against cwd, in file order.
func ParseAndNormalizeJSONL(input, cwd string) ([]map[string]any, error) {
	var out []map[string]any
	for i, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		out = append(out, NormalizeLogLine(decoded, cwd))
	}
	return out, nil
}

// GroupByDiffKey partitions values by DiffKey, preserving each group's
// original relative order.
func GroupByDiffKey(values []map[string]any) map[string][]map[string]any {
	groups := map[string][]map[string]any{}
	for _, v := range values {
		key := DiffKey(v)
		groups[key] = append(groups[key], v)
	}
	return groups
}

// DiffNormalizedJSONL compares expected and actual JSONL logs after
// normalization, grouped by DiffKey, and returns a human-readable report of
// every group that differs (empty string if none do).
func DiffNormalizedJSONL(expectedJSONL, actualJSONL, cwd string) (string, error) {
	expected, err := ParseAndNormalizeJSONL(expectedJSONL, cwd)
	if err != nil {
		return "", fmt.Errorf("expected: %w", err)
	}
	actual, err := ParseAndNormalizeJSONL(actualJSONL, cwd)
	if err != nil {
		return "", fmt.Errorf("actual: %w", err)
	}

	expectedGroups := GroupByDiffKey(expected)
	actualGroups := GroupByDiffKey(actual)

	keySet := map[string]struct{}{}
	for k := range expectedGroups {
		keySet[k] = struct{}{}
	}
	for k := range actualGroups {
		keySet[k] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var report strings.Builder
	for _, key := range keys {
		expectedItems := expectedGroups[key]
		actualItems := actualGroups[key]
		expectedText, err := renderGroup(expectedItems)
		if err != nil {
			return "", err
		}
		actualText, err := renderGroup(actualItems)
		if err != nil {
			return "", err
		}
		if expectedText == actualText {
			continue
		}

		diff := difflib.UnifiedDiff{
			A:       difflib.SplitLines(expectedText),
			B:       difflib.SplitLines(actualText),
			Context: 3,
		}
		text, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&report, "\n=== DIFF GROUP: %s ===\n%s\n", key, text)
	}
	return report.String(), nil
}

func renderGroup(values []map[string]any) (string, error) {
	if values == nil {
		values = []map[string]any{}
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
