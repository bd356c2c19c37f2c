package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"main.js": "const fs = require('fs');\n" +
			"pi.tool('Read', { file_path: 'x' });\n" +
			"function run() { eval('1+1'); }\n",
		"util/helper.js": "pi.exec('ls', []);\n" +
			"const token = process.env.TOKEN;\n",
		"README.md": "pi.tool should not be scanned here\n",
	}
	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestScanFindsKnownSignals(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	signals, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var kinds []string
	for _, s := range signals {
		kinds = append(kinds, s.Kind)
	}

	want := map[string]bool{SignalFS: false, SignalTool: false, SignalEval: false, SignalExec: false, SignalEnv: false}
	for _, k := range kinds {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Fatalf("expected signal kind %q, got kinds %v", k, kinds)
		}
	}

	for _, s := range signals {
		if s.Path == "README.md" {
			t.Fatalf("non-source file was scanned: %+v", s)
		}
	}
}

func TestScanIsDeterministicAndSorted(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	first, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	second, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	firstLedger, err := Ledger(first)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	secondLedger, err := Ledger(second)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if string(firstLedger) != string(secondLedger) {
		t.Fatalf("ledger not byte-identical across runs")
	}

	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if prev.Path > cur.Path {
			t.Fatalf("signals not sorted by path: %+v then %+v", prev, cur)
		}
		if prev.Path == cur.Path && prev.Kind > cur.Kind {
			t.Fatalf("signals not sorted by kind within path: %+v then %+v", prev, cur)
		}
	}
}

func TestScanEmptyTreeProducesEmptyArrayLedger(t *testing.T) {
	dir := t.TempDir()
	signals, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	ledger, err := Ledger(signals)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if string(ledger) != "[]" {
		t.Fatalf("ledger = %q, want []", ledger)
	}
}
