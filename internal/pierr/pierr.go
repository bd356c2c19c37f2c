// Package pierr implements the typed error taxonomy: one Kind per
// recovery policy (Config, Session, SessionNotFound, Provider, Auth,
// Tool, Validation, Extension, IO, Json, Index, Aborted, Api), each
// producing a Hints projection (a summary, actionable strings, and
// key/value context) by substring-matching the underlying message
// ("429" => rate-limit hints, "database is locked" => index-busy hints,
// and so on).
package pierr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Kind identifies an error's recovery policy.
type Kind string

const (
	KindConfig          Kind = "config"
	KindSession         Kind = "session"
	KindSessionNotFound Kind = "session_not_found"
	KindProvider        Kind = "provider"
	KindAuth            Kind = "auth"
	KindTool            Kind = "tool"
	KindValidation      Kind = "validation"
	KindExtension       Kind = "extension"
	KindIO              Kind = "io"
	KindJSON            Kind = "json"
	KindIndex           Kind = "index"
	KindAborted         Kind = "aborted"
	KindAPI             Kind = "api"
)

// Error is the taxonomy's single concrete type. Provider and Tool errors
// carry an extra identifying field (provider name / tool name).
type Error struct {
	Kind    Kind
	Subject string // provider name (KindProvider) or tool name (KindTool); empty otherwise
	Path    string // file path (KindSessionNotFound); empty otherwise
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindSessionNotFound:
		return fmt.Sprintf("Session not found: %s", e.Path)
	case KindProvider:
		return fmt.Sprintf("Provider error: %s: %s", e.Subject, e.Message)
	case KindTool:
		return fmt.Sprintf("Tool error: %s: %s", e.Subject, e.Message)
	case KindAborted:
		return "Operation aborted"
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers
// can write errors.Is(err, pierr.Aborted()) regardless of message text.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Constructors.

func Config(message string) *Error    { return &Error{Kind: KindConfig, Message: message} }
func Session(message string) *Error   { return &Error{Kind: KindSession, Message: message} }
func Auth(message string) *Error      { return &Error{Kind: KindAuth, Message: message} }
func Validation(message string) *Error { return &Error{Kind: KindValidation, Message: message} }
func Extension(message string) *Error { return &Error{Kind: KindExtension, Message: message} }
func API(message string) *Error       { return &Error{Kind: KindAPI, Message: message} }
func Index(message string) *Error     { return &Error{Kind: KindIndex, Message: message} }

func Aborted() *Error {
	return &Error{Kind: KindAborted, Message: "Operation aborted"}
}

func SessionNotFound(path string) *Error {
	return &Error{Kind: KindSessionNotFound, Path: path, Message: fmt.Sprintf("Session not found: %s", path)}
}

func Provider(provider, message string) *Error {
	return &Error{Kind: KindProvider, Subject: provider, Message: message}
}

func Tool(tool, message string) *Error {
	return &Error{Kind: KindTool, Subject: tool, Message: message}
}

// IO wraps an underlying I/O error, preserving it for Hints()'s
// errors.Is-based dispatch.
func IO(cause error) *Error {
	return &Error{Kind: KindIO, Message: cause.Error(), Cause: cause}
}

// JSON wraps an underlying encoding/json error.
func JSON(cause error) *Error {
	return &Error{Kind: KindJSON, Message: cause.Error(), Cause: cause}
}

// Hints is the structured remediation projection returned by
// (*Error).Hints: a summary, a small list of actionable strings, and a
// list of (label, value) context pairs.
type Hints struct {
	Summary string
	Hints   []string
	Context []KV
}

// KV is one (label, value) context pair.
type KV struct {
	Label string
	Value string
}

func build(summary string, hints []string, context ...KV) Hints {
	return Hints{Summary: summary, Hints: hints, Context: context}
}

func containsAny(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// Hints maps e to a stable, user-facing hint taxonomy by matching
// substrings in the underlying message.
func (e *Error) Hints() Hints {
	switch e.Kind {
	case KindConfig:
		return configHints(e.Message)
	case KindSession:
		return sessionHints(e.Message)
	case KindSessionNotFound:
		return build("Session file not found.",
			[]string{
				"Use `--continue` to open the most recent session.",
				"Verify the path or move the session back into the sessions directory.",
			},
			KV{"path", e.Path})
	case KindProvider:
		return providerHints(e.Subject, e.Message)
	case KindAuth:
		return authHints(e.Message)
	case KindTool:
		return toolHints(e.Subject, e.Message)
	case KindValidation:
		return build("Validation failed for input or config.",
			[]string{
				"Check the specific fields mentioned in the error.",
				"Review CLI flags or settings for typos.",
			},
			KV{"details", e.Message})
	case KindExtension:
		return build("Extension failed to load or run.",
			[]string{
				"Try `--no-extensions` to isolate the issue.",
				"Check the extension manifest and dependencies.",
			},
			KV{"details", e.Message})
	case KindIO:
		return ioHints(e.Cause, e.Message)
	case KindJSON:
		return build("JSON parsing failed.",
			[]string{
				"Validate the JSON syntax (no trailing commas).",
				"Check that the file is UTF-8 and not truncated.",
			},
			KV{"details", e.Message})
	case KindIndex:
		return indexHints(e.Message)
	case KindAborted:
		return build("Operation aborted.", nil, KV{"details", "Operation cancelled by user or runtime."})
	case KindAPI:
		return build("API request failed.",
			[]string{
				"Check your network connection and retry.",
				"Verify your API key and provider selection.",
			},
			KV{"details", e.Message})
	default:
		return build("An error occurred.", nil, KV{"details", e.Message})
	}
}

func configHints(message string) Hints {
	if containsAny(message, "json", "parse", "serde") {
		return build("Configuration file is not valid JSON.",
			[]string{
				"Fix JSON formatting in the active settings file.",
				"Run `config` to see which settings file is in use.",
			},
			KV{"details", message})
	}
	if containsAny(message, "missing", "not found", "no such file") {
		return build("Configuration file is missing.",
			[]string{
				"Create `~/.pi/agent/settings.json` or set `PI_CONFIG_PATH`.",
				"Run `config` to confirm the resolved path.",
			},
			KV{"details", message})
	}
	return build("Configuration error.",
		[]string{
			"Review your settings file for incorrect values.",
			"Run `config` to verify settings precedence.",
		},
		KV{"details", message})
}

func sessionHints(message string) Hints {
	if containsAny(message, "empty session file", "empty session") {
		return build("Session file is empty or corrupted.",
			[]string{
				"Start a new session with `--no-session`.",
				"Inspect the session file for truncation.",
			},
			KV{"details", message})
	}
	if containsAny(message, "failed to read", "read dir", "read session") {
		return build("Failed to read session data.",
			[]string{
				"Check file permissions for the sessions directory.",
				"Verify `PI_SESSIONS_DIR` if you set it.",
			},
			KV{"details", message})
	}
	return build("Session error.",
		[]string{
			"Try `--continue` or specify `--session <path>`.",
			"Check session file integrity in the sessions directory.",
		},
		KV{"details", message})
}

func providerKeyHint(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return "Set `ANTHROPIC_API_KEY` (or use `/login anthropic`)."
	case "openai":
		return "Set `OPENAI_API_KEY` for OpenAI requests."
	case "gemini", "google":
		return "Set `GOOGLE_API_KEY` for Gemini requests."
	case "azure", "azure_openai", "azure-openai":
		return "Set `AZURE_OPENAI_API_KEY` for Azure OpenAI."
	default:
		return fmt.Sprintf("Check API key configuration for provider `%s`.", provider)
	}
}

func providerHints(provider, message string) Hints {
	context := []KV{{"provider", provider}, {"details", message}}
	keyHint := providerKeyHint(provider)

	switch {
	case containsAny(message, "401", "unauthorized", "invalid api key", "api key"):
		return build("Provider authentication failed.",
			[]string{keyHint, "If using OAuth, run `/login` again."}, context...)
	case containsAny(message, "403", "forbidden"):
		return build("Provider access forbidden.",
			[]string{
				"Verify the account has access to the requested model.",
				"Check organization/project permissions for the API key.",
			}, context...)
	case containsAny(message, "429", "rate limit", "too many requests"):
		return build("Provider rate limited the request.",
			[]string{
				"Wait and retry, or reduce request rate.",
				"Consider smaller max_tokens to lower load.",
			}, context...)
	case containsAny(message, "529", "overloaded"):
		return build("Provider is overloaded.",
			[]string{
				"Retry after a short delay.",
				"Switch to a different model if available.",
			}, context...)
	case containsAny(message, "timeout", "timed out"):
		return build("Provider request timed out.",
			[]string{
				"Check network stability and retry.",
				"Lower max_tokens to shorten responses.",
			}, context...)
	case containsAny(message, "400", "bad request", "invalid request"):
		return build("Provider rejected the request.",
			[]string{
				"Check model name, tools schema, and request size.",
				"Reduce message size or tool payloads.",
			}, context...)
	case containsAny(message, "500", "internal server error", "server error"):
		return build("Provider encountered a server error.",
			[]string{
				"Retry after a short delay.",
				"If persistent, try a different model/provider.",
			}, context...)
	default:
		return build("Provider request failed.",
			[]string{keyHint, "Check network connectivity and provider status."}, context...)
	}
}

func authHints(message string) Hints {
	if containsAny(message, "missing authorization code", "authorization code") {
		return build("OAuth login did not complete.",
			[]string{
				"Run `/login` again to restart the flow.",
				"Ensure the browser redirect URL was opened.",
			},
			KV{"details", message})
	}
	if containsAny(message, "token exchange failed", "invalid token response") {
		return build("OAuth token exchange failed.",
			[]string{
				"Retry `/login` to refresh credentials.",
				"Check network connectivity during the login flow.",
			},
			KV{"details", message})
	}
	return build("Authentication error.",
		[]string{
			"Verify API keys or run `/login`.",
			"Check auth.json permissions in the Pi config directory.",
		},
		KV{"details", message})
}

func toolHints(tool, message string) Hints {
	context := []KV{{"tool", tool}, {"details", message}}
	if containsAny(message, "not found", "no such file", "command not found") {
		return build("Tool executable or target not found.",
			[]string{
				"Check PATH and tool installation.",
				"Verify the tool input path exists.",
			}, context...)
	}
	return build("Tool execution failed.",
		[]string{
			"Check the tool output for details.",
			"Re-run with simpler inputs to isolate the failure.",
		}, context...)
}

func ioHints(cause error, message string) Hints {
	var kind string
	context := func(k string) []KV {
		return []KV{{"error_kind", k}, {"details", message}}
	}

	switch {
	case errors.Is(cause, fs.ErrNotExist):
		kind = "NotFound"
		return build("Required file or directory not found.",
			[]string{
				"Verify the path exists and is spelled correctly.",
				"Check `PI_CONFIG_PATH` or `PI_SESSIONS_DIR` overrides.",
			}, context(kind)...)
	case errors.Is(cause, fs.ErrPermission):
		kind = "PermissionDenied"
		return build("Permission denied while accessing a file.",
			[]string{
				"Check file permissions or ownership.",
				"Try a different location with write access.",
			}, context(kind)...)
	case errors.Is(cause, os.ErrDeadlineExceeded):
		kind = "TimedOut"
		return build("I/O operation timed out.",
			[]string{
				"Check network or filesystem latency.",
				"Retry after confirming connectivity.",
			}, context(kind)...)
	case containsAny(message, "connection refused"):
		kind = "ConnectionRefused"
		return build("Connection refused.",
			[]string{
				"Check network connectivity or proxy settings.",
				"Verify the target service is reachable.",
			}, context(kind)...)
	default:
		kind = "Other"
		return build("I/O error occurred.",
			[]string{
				"Check file paths and permissions.",
				"Retry after resolving any transient issues.",
			}, context(kind)...)
	}
}

func indexHints(message string) Hints {
	if containsAny(message, "database is locked", "busy") {
		return build("Session index database is locked.",
			[]string{
				"Close other running instances using the same index.",
				"Retry once the lock clears.",
			},
			KV{"details", message})
	}
	return build("Session index error.",
		[]string{
			"Ensure the index database path is writable.",
			"The index is rebuildable from session files if deleted.",
		},
		KV{"details", message})
}
