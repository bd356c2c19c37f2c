package tools

import (
	"testing"
)

// TestPlanModeToggle verifies plan mode marker handling.
func TestPlanModeToggle(testingHandle *testing.T) {
	envDir := testingHandle.TempDir()
	sessionID := "session-1"

	if IsPlanMode(envDir, sessionID) {
		testingHandle.Fatalf("expected plan mode to be false initially")
	}
	if err := SetPlanMode(envDir, sessionID, true); err != nil {
		testingHandle.Fatalf("enable plan mode: %v", err)
	}
	if !IsPlanMode(envDir, sessionID) {
		testingHandle.Fatalf("expected plan mode to be true")
	}
	if err := SetPlanMode(envDir, sessionID, false); err != nil {
		testingHandle.Fatalf("disable plan mode: %v", err)
	}
	if IsPlanMode(envDir, sessionID) {
		testingHandle.Fatalf("expected plan mode to be false after disable")
	}
}
