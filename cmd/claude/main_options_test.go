package main

import (
	"strings"
	"testing"
)

// TestValidateOptionsFormatRules verifies the print/output-format coupling.
func TestValidateOptionsFormatRules(t *testing.T) {
	cases := []struct {
		name    string
		opts    options
		wantErr string
	}{
		{
			name:    "invalid output format",
			opts:    options{Print: true, OutputFormat: "yaml"},
			wantErr: "Invalid output format",
		},
		{
			name:    "output format requires print",
			opts:    options{OutputFormat: "json"},
			wantErr: "--output-format only works with --print",
		},
		{
			name:    "no-session-persistence requires print",
			opts:    options{OutputFormat: "text", NoSessionPersistence: true},
			wantErr: "--no-session-persistence can only be used with --print",
		},
		{
			name:    "max-turns requires print",
			opts:    options{OutputFormat: "text", MaxTurns: 3},
			wantErr: "--max-turns only works with --print",
		},
		{
			name: "print json is valid",
			opts: options{Print: true, OutputFormat: "json"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateOptions(&tc.opts, t.TempDir())
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("validateOptions: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want message containing %q", err, tc.wantErr)
			}
		})
	}
}

// TestValidateOptionsSessionRules verifies session flag compatibility.
func TestValidateOptionsSessionRules(t *testing.T) {
	bad := options{OutputFormat: "text", SessionID: "not-a-uuid"}
	if err := validateOptions(&bad, t.TempDir()); err == nil || !strings.Contains(err.Error(), "valid UUID") {
		t.Fatalf("err = %v, want UUID validation failure", err)
	}

	fixed := options{OutputFormat: "text", SessionID: "7b7e3bb4-95ad-4ca4-a9d2-70ff23a9bf9a", Resume: "abc"}
	if err := validateOptions(&fixed, t.TempDir()); err == nil || !strings.Contains(err.Error(), "--fork-session") {
		t.Fatalf("err = %v, want fork-session requirement", err)
	}
	fixed.ForkSession = true
	if err := validateOptions(&fixed, t.TempDir()); err != nil {
		t.Fatalf("validateOptions with fork: %v", err)
	}

	conflict := options{OutputFormat: "text", SessionPath: "/tmp/s.jsonl", Continue: true}
	if err := validateOptions(&conflict, t.TempDir()); err == nil || !strings.Contains(err.Error(), "--session cannot be combined") {
		t.Fatalf("err = %v, want session/continue conflict", err)
	}
}

// TestIntersectLists verifies the --tools and --allowedTools intersection.
func TestIntersectLists(t *testing.T) {
	got := intersectLists([]string{"Bash", "Read", "Edit"}, []string{"Read", "Bash"})
	if len(got) != 2 || got[0] != "Bash" || got[1] != "Read" {
		t.Fatalf("intersectLists = %v", got)
	}
}
