package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/evlc/internal/compiler"
	"github.com/robert-at-pretension-io/evlc/internal/config"
	"github.com/robert-at-pretension-io/evlc/internal/lexer"
)

func writeEVL(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runIndexerForTest(t *testing.T, idx *Indexer, root string) (*LintResult, string) {
	t.Helper()
	var out bytes.Buffer
	idx.Out = &out
	result, err := idx.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	return result, out.String()
}

const (
	srcA   = "module a;\nwire x, y;\nbuf b0(y, x);\nendmodule\n"
	srcB   = "module b;\nwire p, q, unused;\nand g(p, q, q);\nendmodule\n"
	srcBad = "module bad;\nwire a / b;\nendmodule\n"
)

func sampleTree(t *testing.T) string {
	dir := t.TempDir()
	writeEVL(t, dir, "a.evl", srcA)
	writeEVL(t, dir, "sub/b.evl", srcB)
	writeEVL(t, dir, "bad.evl", srcBad)
	writeEVL(t, dir, "notes.txt", "not a source")
	return dir
}

func TestRunCompilesTree(t *testing.T) {
	dir := sampleTree(t)
	idx := NewWithConfig(config.DefaultConfig())

	result, out := runIndexerForTest(t, idx, dir)

	if result.Stats.Files != 3 || result.Stats.Compiled != 2 || result.Stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	if result.Stats.Wires != 5 || result.Stats.Nets != 5 || result.Stats.Gates != 2 || result.Stats.Pins != 5 {
		t.Fatalf("unexpected element counts: %+v", result.Stats)
	}

	wantPaths := []string{
		filepath.Join(dir, "a.evl"),
		filepath.Join(dir, "bad.evl"),
		filepath.Join(dir, "sub", "b.evl"),
	}
	if len(result.Files) != len(wantPaths) {
		t.Fatalf("expected %d file results, got %+v", len(wantPaths), result.Files)
	}
	for i, want := range wantPaths {
		if result.Files[i].Path != want {
			t.Fatalf("file %d: expected %s, got %s", i, want, result.Files[i].Path)
		}
	}

	a, bad, b := result.Files[0], result.Files[1], result.Files[2]
	if a.Status != StatusCompiled || a.Module != "a" || len(a.Artifacts) != 4 {
		t.Fatalf("unexpected result for a.evl: %+v", a)
	}
	if bad.Status != StatusFailed || bad.Module != "" || len(bad.Artifacts) != 0 {
		t.Fatalf("unexpected result for bad.evl: %+v", bad)
	}
	var lexErr *lexer.Error
	if !errors.As(bad.Err, &lexErr) || lexErr.Line != 2 {
		t.Fatalf("expected wrapped lexer error on line 2, got %v", bad.Err)
	}
	if !strings.HasPrefix(bad.Err.Error(), wantPaths[1]+": ") {
		t.Fatalf("expected error prefixed with path, got %q", bad.Err)
	}

	if len(result.CompileErrors) != 1 {
		t.Fatalf("expected one compile error, got %+v", result.CompileErrors)
	}
	ce := result.CompileErrors[0]
	if ce.File != wantPaths[1] || ce.Kind != "lex" || ce.Line != 2 || strings.Contains(ce.Message, dir) {
		t.Fatalf("unexpected compile error: %+v", ce)
	}

	if result.Summary.Errors != 0 || result.Summary.Warnings != 1 || result.Summary.Info != 3 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if b.Warnings != 1 || b.Info != 1 || a.Info != 2 {
		t.Fatalf("unexpected per-file counts: a=%+v b=%+v", a, b)
	}
	if !result.Failed() {
		t.Fatalf("expected run with a compile error to be failed")
	}

	if _, err := os.Stat(filepath.Join(dir, "a.evl.netlist")); err != nil {
		t.Fatalf("expected netlist artifact: %v", err)
	}
	for _, section := range []string{"Found 3 EVL files", "=== Compile Errors ===", "[lex]", "=== Policy Summary ===", "Compiled: 2"} {
		if !strings.Contains(out, section) {
			t.Fatalf("expected %q in output:\n%s", section, out)
		}
	}
}

func TestRunSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeEVL(t, dir, "a.evl", srcA)
	writeEVL(t, dir, "other.evl", srcBad)

	result, _ := runIndexerForTest(t, NewWithConfig(config.DefaultConfig()), path)
	if result.Stats.Files != 1 || result.Failed() {
		t.Fatalf("expected a single clean file, got %+v", result)
	}
}

func TestRunOutputDirKeepsSameNamedSourcesApart(t *testing.T) {
	dir := t.TempDir()
	writeEVL(t, dir, "x/m.evl", "module one;\nwire a, b;\nbuf g(b, a);\nendmodule\n")
	writeEVL(t, dir, "y/m.evl", "module two;\nwire h;\nnot g(h);\nendmodule\n")
	out := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Output.Dir = out
	result, _ := runIndexerForTest(t, NewWithConfig(cfg), dir)

	if len(result.Files) != 2 || result.Failed() {
		t.Fatalf("expected two clean files, got %+v", result.Files)
	}
	seen := make(map[string]string)
	for _, fr := range result.Files {
		for _, a := range fr.Artifacts {
			if prev, ok := seen[a]; ok {
				t.Fatalf("artifact %s claimed by both %s and %s", a, prev, fr.Path)
			}
			seen[a] = fr.Path
		}
	}

	for sub, module := range map[string]string{"x": "one", "y": "two"} {
		raw, err := os.ReadFile(filepath.Join(out, sub, "m.evl.netlist"))
		if err != nil {
			t.Fatalf("read %s netlist: %v", sub, err)
		}
		if !strings.HasPrefix(string(raw), "module "+module+"\n") {
			t.Fatalf("expected module %s in %s/m.evl.netlist, got:\n%s", module, sub, raw)
		}
	}
}

func TestRunSyntaxOnly(t *testing.T) {
	dir := t.TempDir()
	writeEVL(t, dir, "a.evl", srcA)

	idx := NewWithConfig(config.DefaultConfig())
	idx.SyntaxOnly = true
	result, _ := runIndexerForTest(t, idx, dir)

	if result.Files[0].Status != StatusSyntaxOnly || len(result.Files[0].Artifacts) != 3 {
		t.Fatalf("unexpected syntax-only result: %+v", result.Files[0])
	}
	if result.Stats.Nets != 0 || result.Stats.Pins != 2 {
		t.Fatalf("unexpected syntax-only stats: %+v", result.Stats)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.evl.netlist")); !os.IsNotExist(err) {
		t.Fatalf("expected no netlist artifact")
	}
}

func TestRunLintDisabled(t *testing.T) {
	dir := t.TempDir()
	writeEVL(t, dir, "b.evl", srcB)

	cfg := config.DefaultConfig()
	off := false
	cfg.Lint.Enabled = &off
	result, out := runIndexerForTest(t, NewWithConfig(cfg), dir)

	if len(result.Violations) != 0 || result.Failed() {
		t.Fatalf("expected no findings with lint disabled, got %+v", result.Violations)
	}
	if strings.Contains(out, "Policy Summary") {
		t.Fatalf("expected no policy summary:\n%s", out)
	}
}

func TestRunLintErrorFails(t *testing.T) {
	dir := t.TempDir()
	writeEVL(t, dir, "dup.evl", "module dup;\nwire a, b;\nbuf u(a, b);\nbuf u(b, a);\nendmodule\n")

	result, _ := runIndexerForTest(t, NewWithConfig(config.DefaultConfig()), dir)
	if result.Summary.Errors != 1 || len(result.CompileErrors) != 0 || !result.Failed() {
		t.Fatalf("expected a duplicate instance error, got %+v", result.Summary)
	}
	if result.Files[0].Errors != 1 {
		t.Fatalf("expected per-file error count, got %+v", result.Files[0])
	}
}

func TestRunCustomRuleObeysConfig(t *testing.T) {
	policyDir := t.TempDir()
	custom := `package evl.lint

import rego.v1

custom contains v if {
	some g in input.gates
	g.type == "latch"
	v := {"rule": "no_latches", "severity": "warning", "file": g.file, "line": g.line, "message": "latch"}
}
`
	if err := os.WriteFile(filepath.Join(policyDir, "latches.rego"), []byte(custom), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	tests := []struct {
		name     string
		severity string
		want     int
		failed   bool
	}{
		{"default", "", 1, false},
		{"raised", "error", 1, true},
		{"off", "off", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeEVL(t, dir, "l.evl", "module l;\nwire d, q;\nlatch l0(q, d);\nendmodule\n")

			cfg := config.DefaultConfig()
			cfg.Lint.PolicyDir = policyDir
			cfg.Lint.Rules["single_pin_net"] = "off"
			if tt.severity != "" {
				cfg.Lint.Rules["no_latches"] = tt.severity
			}
			result, _ := runIndexerForTest(t, NewWithConfig(cfg), dir)

			if len(result.Violations) != tt.want || result.Summary.TotalViolations != tt.want {
				t.Fatalf("expected %d violations, got %+v", tt.want, result.Violations)
			}
			if result.Failed() != tt.failed {
				t.Fatalf("expected Failed()=%v, got summary %+v", tt.failed, result.Summary)
			}
			if tt.severity == "error" && (result.Violations[0].Severity != "error" || result.Files[0].Errors != 1) {
				t.Fatalf("expected configured severity to apply, got %+v / %+v", result.Violations[0], result.Files[0])
			}
		})
	}
}

func TestContractViolationListsProblems(t *testing.T) {
	base := errors.New("output schema validation failed")

	err := contractViolation("Output contract violation", []string{"a: conflicting values", "b: field not allowed"}, base)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped schema error, got %v", err)
	}
	for _, want := range []string{"CRITICAL: Output contract violation", "  - a: conflicting values", "  - b: field not allowed"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}

	single := contractViolation("Output contract violation", []string{"a"}, base)
	if strings.Contains(single.Error(), "  - ") {
		t.Fatalf("expected a single problem to stay on one line, got %q", single.Error())
	}
}

func TestRunJSONOutput(t *testing.T) {
	dir := sampleTree(t)
	idx := NewWithConfig(config.DefaultConfig())
	idx.JSONOutput = true
	idx.Verbose = true

	_, out := runIndexerForTest(t, idx, dir)

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("expected pure JSON output: %v\n%s", err, out)
	}
	for _, key := range []string{"violations", "summary", "stats", "files", "compile_errors"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %q in JSON output", key)
		}
	}

	var result LintResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.CompileErrors) != 1 || result.CompileErrors[0].Kind != "lex" {
		t.Fatalf("unexpected compile errors: %+v", result.CompileErrors)
	}
	if result.Stats.Compiled != 2 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
}

func TestRunReportsChangesSinceLastRun(t *testing.T) {
	dir := t.TempDir()
	path := writeEVL(t, dir, "a.evl", srcA)
	idx := NewWithConfig(config.DefaultConfig())

	first, _ := runIndexerForTest(t, idx, dir)
	if first.Changes != nil {
		t.Fatalf("expected no changes without a previous snapshot")
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultCacheDir, snapshotFileName)); err != nil {
		t.Fatalf("expected snapshot to be written: %v", err)
	}

	second, _ := runIndexerForTest(t, idx, dir)
	if second.Changes == nil || !second.Changes.Empty() {
		t.Fatalf("expected an empty delta for an unchanged tree, got %+v", second.Changes)
	}

	writeEVL(t, dir, "a.evl", "module a;\nwire x, y, z;\nbuf b0(y, x);\nendmodule\n")
	idx.Verbose = true
	third, out := runIndexerForTest(t, idx, dir)
	if third.Changes == nil || len(third.Changes.Added.Wires) != 1 || third.Changes.Added.Wires[0].Name != "z" {
		t.Fatalf("expected wire z to be added, got %+v", third.Changes)
	}
	if !strings.Contains(out, "=== Verbose: Changes Since Last Run ===") || !strings.Contains(out, "wires:") {
		t.Fatalf("expected change report in verbose output:\n%s", out)
	}
	if !strings.Contains(out, "[1/1] "+path) {
		t.Fatalf("expected progress line for %s:\n%s", path, out)
	}
}

func TestRunSingleFileKeepsRestOfSnapshot(t *testing.T) {
	dir := t.TempDir()
	a := writeEVL(t, dir, "a.evl", srcA)
	b := writeEVL(t, dir, "b.evl", srcB)
	idx := NewWithConfig(config.DefaultConfig())

	runIndexerForTest(t, idx, dir)

	single, _ := runIndexerForTest(t, idx, a)
	if single.Changes == nil || !single.Changes.Empty() {
		t.Fatalf("expected no changes for an unchanged single file, got %+v", single.Changes)
	}

	snap, ok, err := loadFactSnapshot(filepath.Join(dir, config.DefaultCacheDir))
	if err != nil || !ok {
		t.Fatalf("load snapshot: ok=%v err=%v", ok, err)
	}
	if _, ok := snap.Files[b]; !ok {
		t.Fatalf("expected %s to stay in the snapshot, got %v", b, snap.Files)
	}

	writeEVL(t, dir, "b.evl", srcBad)
	tree, _ := runIndexerForTest(t, idx, dir)
	if tree.Changes == nil || len(tree.Changes.Removed.Files) != 1 || tree.Changes.Removed.Files[0].Path != b {
		t.Fatalf("expected %s to be reported removed, got %+v", b, tree.Changes)
	}
	snap, _, _ = loadFactSnapshot(filepath.Join(dir, config.DefaultCacheDir))
	if _, ok := snap.Files[b]; ok {
		t.Fatalf("expected failed %s to leave the snapshot", b)
	}
}

func TestRunCacheDisabled(t *testing.T) {
	dir := t.TempDir()
	writeEVL(t, dir, "a.evl", srcA)

	cfg := config.DefaultConfig()
	off := false
	cfg.Analysis.Cache.Enabled = &off
	runIndexerForTest(t, NewWithConfig(cfg), dir)

	if _, err := os.Stat(filepath.Join(dir, config.DefaultCacheDir)); !os.IsNotExist(err) {
		t.Fatalf("expected no cache dir when disabled")
	}
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	writeEVL(t, dir, "a.evl", srcA)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := NewWithConfig(config.DefaultConfig())
	idx.Out = &bytes.Buffer{}
	if _, err := idx.Run(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		src  string
		kind string
		line int
	}{
		{"module m;\nwire a / b;", "lex", 2},
		{"module m;\nwire a", "segment", 2},
		{"module m;\nwire [3:1] x;\nendmodule", "parse", 2},
		{"module m;\nwire a;\nwire a;\nendmodule", "symbol", 3},
		{"module m;\nand g(a);\nendmodule", "resolution", 2},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			_, err := compiler.Build("m.evl", strings.NewReader(tt.src))
			if err == nil {
				t.Fatalf("expected build error")
			}
			kind, line := classify(fmt.Errorf("m.evl: %w", err))
			if kind != tt.kind || line != tt.line {
				t.Fatalf("expected %s at line %d, got %s at line %d (%v)", tt.kind, tt.line, kind, line, err)
			}
		})
	}

	_, err := os.Open(filepath.Join(t.TempDir(), "missing.evl"))
	if kind, line := classify(err); kind != "io" || line != 0 {
		t.Fatalf("expected io with no line, got %s %d", kind, line)
	}
}
