package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaude/openclaude/internal/extensions/dispatcher"
	"github.com/openclaude/openclaude/internal/extlog"
	"github.com/openclaude/openclaude/internal/journal"
	"github.com/openclaude/openclaude/internal/jsruntime"
	"github.com/openclaude/openclaude/internal/tools"
)

// extensionSession adapts a journal.Session to the dispatcher's Session
// capability, giving pi.session() hostcalls read access to the header and
// active branch plus the two mutations extensions are allowed: renaming
// the session and appending custom entries.
type extensionSession struct {
	sess *journal.Session
}

func (s *extensionSession) GetState() (json.RawMessage, error) {
	return json.Marshal(s.sess.Header)
}

func (s *extensionSession) GetMessages() (json.RawMessage, error) {
	if s.sess.LeafID == "" {
		return json.RawMessage("[]"), nil
	}
	path, err := s.sess.GetPathToEntry(s.sess.LeafID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(path)
}

func (s *extensionSession) SetName(name string) error {
	s.sess.AppendSessionInfo(name)
	return nil
}

func (s *extensionSession) AppendCustomEntry(customType string, data json.RawMessage) error {
	s.sess.Push(customType, data)
	return nil
}

// maxExtensionPumpRounds bounds the startup drain so a misbehaving
// extension that keeps enqueueing hostcalls cannot wedge the host.
const maxExtensionPumpRounds = 1000

// runExtensionHost evals every script in pkgDir inside the sandboxed
// runtime, then drives hostcall dispatch and the microtask queue to
// quiescence. A failing extension is reported and abandoned; the host
// stays intact.
func runExtensionHost(ctx context.Context, pkgDir string, reg *tools.Registry, sess *journal.Session, errOut io.Writer) error {
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read extension package dir: %w", err)
	}

	rt := jsruntime.New()
	d := dispatcher.New(reg, nil, &extensionSession{sess: sess}, nil, reg.CWD()).
		WithLogger(extlog.New(errOut, "extension-host"))

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".js") && !strings.HasSuffix(name, ".mjs") && !strings.HasSuffix(name, ".cjs") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(pkgDir, name))
		if err != nil {
			fmt.Fprintf(errOut, "extension %s: %v\n", name, err)
			continue
		}
		if res := rt.Eval(string(src)); res.Err != nil {
			fmt.Fprintf(errOut, "extension %s: %v\n", name, res.Err)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return nil
	}

	for round := 0; round < maxExtensionPumpRounds; round++ {
		handled := d.Pump(ctx, rt)
		stats := rt.Tick()
		if handled == 0 && !stats.RanMacrotask {
			break
		}
	}
	return nil
}
