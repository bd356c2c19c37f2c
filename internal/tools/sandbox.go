package tools

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Sandbox controls filesystem access for tool operations.
type Sandbox struct {
	// Roots is the allowlist of permitted directories.
	Roots []string
	// Deny is the denylist of forbidden directory prefixes.
	Deny []string
}

var (
	// ErrPathNotAllowed indicates the path is outside allowed roots.
	ErrPathNotAllowed = errors.New("path not allowed")
	// ErrPathDenied indicates the path is explicitly denied.
	ErrPathDenied = errors.New("path denied")
)

// NewSandbox builds a sandbox from root allowlist and default denylist.
func NewSandbox(roots []string) *Sandbox {
	deny := []string{"/proc", "/sys", "/dev"}
	home, err := os.UserHomeDir()
	if err == nil {
		// Protect SSH keys from accidental exfiltration.
		deny = append(deny, filepath.Join(home, ".ssh"))
	}
	return &Sandbox{Roots: roots, Deny: deny}
}

// ResolvePath validates and returns a normalized absolute path.
func (s *Sandbox) ResolvePath(path string, requireExisting bool) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path: %w", ErrPathNotAllowed)
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	clean := filepath.Clean(absolute)

	if requireExisting {
		// For read-only operations we must ensure the path exists.
		if _, err := os.Stat(clean); err != nil {
			return "", err
		}
	}

	realPath := clean
	if _, err := os.Lstat(clean); err == nil {
		// Resolve symlinks to prevent path traversal.
		if resolved, err := filepath.EvalSymlinks(clean); err == nil {
			realPath = resolved
		}
	}

	for _, denied := range s.Deny {
		if isSubpath(denied, realPath) {
			return "", fmt.Errorf("%w: %s", ErrPathDenied, realPath)
		}
	}

	for _, root := range s.Roots {
		if root == "" {
			continue
		}
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if isSubpath(rootAbs, realPath) {
			return realPath, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, realPath)
}

// setProcessGroup configures cmd to run as the leader of its own process
// group, so killProcessTree below can terminate every descendant it
// spawns rather than only the direct child, so tools that spawn child
// processes cooperate with process-tree kill on timeout/abort. Mirrors
// the pattern already used for the exec hostcall in
// internal/extensions/dispatcher/exec.go.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree sends SIGKILL to cmd's entire process group. Safe to
// call once cmd.Start has succeeded; a no-op if the process never started.
func killProcessTree(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return syscall.Kill(cmd.Process.Pid, syscall.SIGKILL)
	}
	return nil
}

// isSubpath returns true when target is equal to or inside root.
func isSubpath(root string, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".."
}
