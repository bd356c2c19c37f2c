package rpc

import (
	"bufio"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/openclaude/openclaude/internal/testutil"
)

// TestSystemBenchmarkBinaryRespondsToGetState is a system-level smoke test
// driving the real built binary (not the in-process mock harness the rest
// of this package uses) over its RPC front-end. It skips unless a caller
// points PI_BENCH_BINARY at a built `claude` binary.
func TestSystemBenchmarkBinaryRespondsToGetState(t *testing.T) {
	bin := testutil.BenchBinary(t)

	cmd := exec.Command(bin, "rpc", "--no-extensions", "--no-session-persistence")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start %s: %v", bin, err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	req, _ := json.Marshal(map[string]any{"id": "1", "type": "get_state"})
	if _, err := stdin.Write(append(req, '\n')); err != nil {
		t.Fatalf("write request: %v", err)
	}

	done := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		if scanner.Scan() {
			done <- scanner.Text()
		} else {
			done <- ""
		}
	}()

	select {
	case line := <-done:
		if line == "" {
			t.Fatal("binary produced no RPC response")
		}
		var resp map[string]any
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("parse response: %v", err)
		}
		if resp["type"] != "response" {
			t.Fatalf("type = %v, want response", resp["type"])
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for RPC response from binary")
	}
}
