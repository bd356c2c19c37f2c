package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/openclaude/openclaude/internal/model"
)

// maxCommandOutput limits combined stdout/stderr output.
const maxCommandOutput = 64 * 1024

// BashTool runs shell commands.
type BashTool struct{}

func (t *BashTool) Name() string {
	return "Bash"
}

func (t *BashTool) Description() string {
	return "Run a shell command."
}

func (t *BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]any{
				"type":        "string",
				"description": "Working directory.",
			},
		},
		"required": []string{"command"},
	}
}

// Run executes the command with no streaming, for callers that only want
// the final result.
func (t *BashTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	return t.RunStreaming(ctx, input, toolCtx, nil)
}

// RunStreaming implements StreamingTool: it spawns the command in its own
// process group so ctx cancellation (abort or a caller-imposed timeout)
// can kill the whole tree, and forwards each
// interleaved stdout/stderr line to onUpdate as it arrives rather than
// only after the command exits.
func (t *BashTool) RunStreaming(ctx context.Context, input json.RawMessage, toolCtx ToolContext, onUpdate OnUpdate) (ToolResult, error) {
	var payload struct {
		Command string `json:"command"`
		CWD     string `json:"cwd"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return ToolResult{IsError: true, Content: fmt.Sprintf("invalid input: %v", err)}, nil
	}
	if strings.TrimSpace(payload.Command) == "" {
		return ToolResult{IsError: true, Content: "command is required"}, nil
	}

	// Default to the current working directory, or validate the provided one.
	workingDir := toolCtx.CWD
	if payload.CWD != "" {
		resolved, err := toolCtx.Sandbox.ResolvePath(payload.CWD, true)
		if err != nil {
			return ToolResult{IsError: true, Content: err.Error()}, nil
		}
		workingDir = resolved
	}

	// Execute commands through bash -lc to match common CLI behavior. ctx
	// cancellation is handled manually below (via killProcessTree) rather
	// than through exec.CommandContext, which only kills the direct
	// process and not children it spawns.
	cmd := exec.Command("bash", "-lc", payload.Command)
	cmd.Dir = workingDir
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return ToolResult{IsError: true, Content: fmt.Sprintf("command failed: %v", err)}, nil
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return ToolResult{IsError: true, Content: fmt.Sprintf("command failed: %v", err)}, nil
	}

	if err := cmd.Start(); err != nil {
		return ToolResult{IsError: true, Content: fmt.Sprintf("command failed: %v", err)}, nil
	}

	var mu sync.Mutex
	var combined bytes.Buffer
	streamPipe := func(r io.Reader) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			if combined.Len() > 0 {
				combined.WriteByte('\n')
			}
			combined.WriteString(line)
			mu.Unlock()
			if onUpdate != nil {
				onUpdate(ToolUpdate{Content: model.TextBlock(line)})
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); streamPipe(stdoutPipe) }()
	go func() { defer wg.Done(); streamPipe(stderrPipe) }()

	waited := make(chan error, 1)
	go func() {
		wg.Wait()
		waited <- cmd.Wait()
	}()

	var runErr error
	aborted := false
	select {
	case runErr = <-waited:
	case <-ctx.Done():
		aborted = true
		_ = killProcessTree(cmd)
		<-waited
		runErr = ctx.Err()
	}

	mu.Lock()
	output := strings.TrimSpace(combined.String())
	mu.Unlock()

	// Truncate to keep responses bounded.
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput] + "\n...[truncated]"
	}

	if aborted {
		return ToolResult{IsError: true, Content: fmt.Sprintf("command aborted: %v\n%s", runErr, output)}, nil
	}
	if runErr != nil {
		return ToolResult{IsError: true, Content: fmt.Sprintf("command failed: %v\n%s", runErr, output)}, nil
	}
	return ToolResult{Content: output}, nil
}
