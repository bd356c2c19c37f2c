package pierr

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderHintsClassifiesBySubstring(t *testing.T) {
	cases := []struct {
		name            string
		message         string
		wantSummaryHas  string
	}{
		{"rate limit", "request failed: 429 too many requests", "rate limited"},
		{"auth", "401 Unauthorized: invalid api key", "authentication failed"},
		{"overloaded", "upstream returned 529 overloaded", "overloaded"},
		{"timeout", "request timed out after 30s", "timed out"},
		{"server error", "500 internal server error", "server error"},
		{"generic", "connection reset", "request failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hints := Provider("anthropic", tc.message).Hints()
			assert.Contains(t, hints.Summary, tc.wantSummaryHas)
			assert.NotEmpty(t, hints.Hints)
			assert.Contains(t, hints.Context, KV{"provider", "anthropic"})
		})
	}
}

func TestSessionNotFoundHints(t *testing.T) {
	err := SessionNotFound("/tmp/sessions/abc.jsonl")
	hints := err.Hints()
	assert.Equal(t, "Session file not found.", hints.Summary)
	assert.Contains(t, hints.Context, KV{"path", "/tmp/sessions/abc.jsonl"})
	assert.Equal(t, "Session not found: /tmp/sessions/abc.jsonl", err.Error())
}

func TestIOHintsDispatchesByErrorKind(t *testing.T) {
	_, statErr := os.Stat("/does/not/exist/at/all")
	require.Error(t, statErr)

	hints := IO(statErr).Hints()
	assert.Equal(t, "Required file or directory not found.", hints.Summary)
}

func TestAbortedIsComparableByKind(t *testing.T) {
	err := Aborted()
	assert.True(t, errors.Is(err, Aborted()))
	assert.False(t, errors.Is(err, Config("x")))
}

func TestIndexHintsDetectsLockContention(t *testing.T) {
	hints := Index("sqlite: database is locked").Hints()
	assert.Equal(t, "Session index database is locked.", hints.Summary)
}

func TestToolHintsDetectsMissingExecutable(t *testing.T) {
	hints := Tool("Bash", "sh: command not found: frobnicate").Hints()
	assert.Equal(t, "Tool executable or target not found.", hints.Summary)
	assert.Contains(t, hints.Context, KV{"tool", "Bash"})
}
