package journal

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// DefaultSessionsRoot returns the per-user sessions directory, honoring
// the PI_SESSIONS_DIR override.
func DefaultSessionsRoot() string {
	if dir := os.Getenv("PI_SESSIONS_DIR"); dir != "" {
		return dir
	}
	if dir := os.Getenv("PI_CODING_AGENT_DIR"); dir != "" {
		return filepath.Join(dir, "sessions")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".pi", "sessions")
}

// EncodeCWD reversibly escapes an absolute path into a filename-safe
// directory component.
//
// url.QueryEscape percent-escapes "/" (as %2F) along with every other
// unsafe byte, collapsing the whole path into a single path segment with
// no ambiguity on decode — unlike a per-segment escape joined by a
// "safe" separator, which a literal "-" inside a directory name would
// make lossy.
func EncodeCWD(cwd string) string {
	return url.QueryEscape(cwd)
}

// DecodeCWD reverses EncodeCWD.
func DecodeCWD(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("decode cwd %q: %w", encoded, err)
	}
	return decoded, nil
}

// PathFor returns the on-disk path for a session under root:
// {root}/{encoded_cwd}/{id}.jsonl.
func PathFor(root, cwd, id string) string {
	return filepath.Join(root, EncodeCWD(cwd), id+".jsonl")
}
