package indexer

// =============================================================================
// DRIVER PHILOSOPHY: THE CORE DECIDES, THE DRIVER REPORTS
// =============================================================================
//
// The indexer runs the single-file build over every EVL source under a root
// and is the only layer that knows about more than one file. Its job is to:
// 1. Resolve the source set from configuration
// 2. Compile files in parallel and write their artifacts
// 3. Flatten designs into fact tables and check them against the CUE contract
// 4. Hand the tables to the lint policy and report the findings
//
// The driver never repairs a design. A build error is recorded against its
// file and that file is left out of the fact tables. If a contract check
// fails, the tables are wrong: fix the producer, don't suppress the error.
// =============================================================================

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robert-at-pretension-io/evlc/internal/compiler"
	"github.com/robert-at-pretension-io/evlc/internal/config"
	"github.com/robert-at-pretension-io/evlc/internal/facts"
	"github.com/robert-at-pretension-io/evlc/internal/lexer"
	"github.com/robert-at-pretension-io/evlc/internal/netlist"
	"github.com/robert-at-pretension-io/evlc/internal/parser"
	"github.com/robert-at-pretension-io/evlc/internal/policy"
	"github.com/robert-at-pretension-io/evlc/internal/report"
	"github.com/robert-at-pretension-io/evlc/internal/validator"
)

// Indexer compiles a tree of EVL files and lints the result.
type Indexer struct {
	// Configuration loaded from evlc.json
	Config *config.Config

	// Verbose output
	Verbose bool

	// JSON output mode
	JSONOutput bool

	// SyntaxOnly stops each build before the netlist
	SyntaxOnly bool

	// Timing output (JSONL)
	Timing     bool
	TimingPath string

	// Out receives the report; nil means os.Stdout
	Out io.Writer
}

// LintResult is the structured result of a run.
// This can be serialized to JSON for programmatic consumption
type LintResult struct {
	// Violations found by policy evaluation
	Violations []policy.Violation `json:"violations"`

	// Summary counts
	Summary ResultSummary `json:"summary"`

	// Compilation statistics
	Stats CompileStats `json:"stats"`

	// Per-file breakdown
	Files []FileResult `json:"files"`

	// Compile errors encountered
	CompileErrors []CompileError `json:"compile_errors"`

	// Facts are the tables the lint ran against
	Facts facts.Tables `json:"-"`

	// Changes against the previous run's snapshot, when one was found
	Changes *facts.Delta `json:"-"`
}

// ResultSummary provides aggregate violation counts
type ResultSummary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// CompileStats provides counts of compiled elements
type CompileStats struct {
	Files    int `json:"files"`
	Compiled int `json:"compiled"`
	Failed   int `json:"failed"`
	Wires    int `json:"wires"`
	Nets     int `json:"nets"`
	Gates    int `json:"gates"`
	Pins     int `json:"pins"`
}

// File statuses
const (
	StatusCompiled   = "compiled"
	StatusSyntaxOnly = "syntax_only"
	StatusFailed     = "failed"
)

// FileResult provides per-file status and violation counts
type FileResult struct {
	Path      string   `json:"path"`
	Module    string   `json:"module,omitempty"`
	Status    string   `json:"status"`
	Errors    int      `json:"errors"`
	Warnings  int      `json:"warnings"`
	Info      int      `json:"info"`
	Artifacts []string `json:"artifacts"`

	// Err is the build error wrapped with the file path
	Err error `json:"-"`
}

// CompileError represents a file that failed to build
type CompileError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Failed reports whether any file failed to build or lint found an error.
func (r *LintResult) Failed() bool {
	return r != nil && (len(r.CompileErrors) > 0 || r.Summary.Errors > 0)
}

// New creates a new Indexer with default configuration
func New() *Indexer {
	return &Indexer{
		Config: config.DefaultConfig(),
	}
}

// NewWithConfig creates a new Indexer with the given configuration
func NewWithConfig(cfg *config.Config) *Indexer {
	idx := New()
	idx.Config = cfg
	return idx
}

func (idx *Indexer) out() io.Writer {
	if idx.Out != nil {
		return idx.Out
	}
	return os.Stdout
}

func (idx *Indexer) printf(format string, args ...any) {
	fmt.Fprintf(idx.out(), format, args...)
}

// outcome is one file's build, filled in by a compile worker
type outcome struct {
	path      string
	design    *compiler.Design
	artifacts []string
	err       error
	kind      string
	line      int
	duration  time.Duration
}

// Run executes the compile and lint pipeline over rootPath. The result is
// returned whenever the pipeline completed; the error reports pipeline
// problems, not build or lint findings (see LintResult.Failed).
func (idx *Indexer) Run(ctx context.Context, rootPath string) (*LintResult, error) {
	runStart := time.Now()
	pipelineErrs := make([]error, 0)
	recordPipelineErr := func(err error) {
		pipelineErrs = append(pipelineErrs, err)
	}
	timingPath := idx.resolveTimingPath(rootPath)
	timing := newTimingRecorder(runStart, timingPath)
	if err := timing.Err(); err != nil {
		recordPipelineErr(fmt.Errorf("timing output disabled: %w", err))
	}
	defer func() { _ = timing.Close() }()

	// 0. Load configuration if not already loaded
	if idx.Config == nil {
		cfg, err := config.Load(rootPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		idx.Config = cfg
	}

	// 1. Find all EVL files using configuration
	stepStart := time.Now()
	files, err := idx.Config.ResolveFiles(rootPath)
	if err != nil {
		return nil, fmt.Errorf("scanning files: %w", err)
	}
	if !idx.JSONOutput {
		idx.printf("Found %d EVL files\n", len(files))
	}
	scanDuration := time.Since(stepStart)
	timing.RecordStage("scan", stepStart, scanDuration, "")

	// 2. Parallel compilation
	stepStart = time.Now()
	outcomes, err := idx.compileAll(ctx, files, baseDir(rootPath), timing)
	if err != nil {
		return nil, err
	}
	compileDuration := time.Since(stepStart)
	timing.RecordStage("compile", stepStart, compileDuration, "")

	lintResult := &LintResult{
		Violations:    []policy.Violation{},
		Files:         make([]FileResult, 0, len(outcomes)),
		CompileErrors: []CompileError{},
	}
	var designs []*compiler.Design
	for _, o := range outcomes {
		fr := FileResult{Path: o.path, Artifacts: o.artifacts}
		if fr.Artifacts == nil {
			fr.Artifacts = []string{}
		}
		if o.err != nil {
			fr.Status = StatusFailed
			fr.Err = o.err
			lintResult.CompileErrors = append(lintResult.CompileErrors, CompileError{
				File:    o.path,
				Line:    o.line,
				Kind:    o.kind,
				Message: errors.Unwrap(o.err).Error(),
			})
		} else {
			fr.Module = o.design.Module.Name
			fr.Status = StatusCompiled
			if o.design.Netlist == nil {
				fr.Status = StatusSyntaxOnly
			}
			designs = append(designs, o.design)
		}
		lintResult.Files = append(lintResult.Files, fr)
	}

	// 3. Fact tables and the CUE contract
	stepStart = time.Now()
	factTables := facts.BuildTables(designs)
	factsValidator, err := validator.NewFactsValidator()
	if err != nil {
		return nil, fmt.Errorf("CRITICAL: Failed to initialize facts validator: %w", err)
	}
	if err := factsValidator.Validate(factTables); err != nil {
		return nil, contractViolation("Fact table contract violation", factsValidator.ValidationErrors(factTables), err)
	}
	factsDuration := time.Since(stepStart)
	timing.RecordStage("facts_validate", stepStart, factsDuration, "")

	lintResult.Facts = factTables
	lintResult.Stats = CompileStats{
		Files:    len(files),
		Compiled: len(designs),
		Failed:   len(lintResult.CompileErrors),
		Wires:    len(factTables.Wires),
		Nets:     len(factTables.Nets),
		Gates:    len(factTables.Gates),
		Pins:     len(factTables.Pins),
	}

	// 4. Snapshot from the previous run
	if idx.Config.CacheEnabled() {
		cacheDir := idx.Config.ResolveCacheDir(rootPath)
		snap, ok, err := loadFactSnapshot(cacheDir)
		if err != nil {
			// An unreadable snapshot is replaced by this run's tables.
			recordPipelineErr(err)
			snap = newFactSnapshot()
		} else if ok {
			delta := facts.ComputeDelta(snap.Tables(files), factTables)
			lintResult.Changes = &delta
		}
		snap.Update(files, factTables)
		if err := snap.Save(cacheDir); err != nil {
			recordPipelineErr(fmt.Errorf("fact snapshot save failed: %w", err))
		}
	}

	// 5. Lint
	var validateDuration, lintDuration time.Duration
	if idx.Config.LintEnabled() {
		stepStart = time.Now()
		policyInput := policy.NewInput(factTables, idx.Config)
		v, err := validator.New()
		if err != nil {
			return nil, fmt.Errorf("CRITICAL: Failed to initialize CUE validator: %w", err)
		}
		if err := v.Validate(policyInput); err != nil {
			return nil, contractViolation("Data contract violation (Go -> policy engine mismatch)", v.ValidationErrors(policyInput), err)
		}
		validateDuration = time.Since(stepStart)
		timing.RecordStage("validate", stepStart, validateDuration, "")

		stepStart = time.Now()
		policyEngine, err := policy.New(idx.Config.Lint.PolicyDir)
		if err != nil {
			return nil, fmt.Errorf("initialize policy engine: %w", err)
		}
		result, err := policyEngine.Evaluate(ctx, policyInput)
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed: %w", err)
		}
		applyPolicyResult(lintResult, result, idx.Config)
		lintDuration = time.Since(stepStart)
		timing.RecordStage("lint", stepStart, lintDuration, "")
	}

	outputValidator, err := validator.NewOutputValidator()
	if err != nil {
		return nil, fmt.Errorf("CRITICAL: Failed to initialize output validator: %w", err)
	}

	// Output results. JSON is checked as the exact bytes consumers receive.
	if idx.JSONOutput {
		data, err := json.MarshalIndent(lintResult, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON output: %w", err)
		}
		if err := outputValidator.ValidateJSON(data); err != nil {
			return nil, contractViolation("Output contract violation", outputValidator.ValidationErrors(lintResult), err)
		}
		if _, err := idx.out().Write(append(data, '\n')); err != nil {
			return nil, fmt.Errorf("failed to write JSON output: %w", err)
		}
	} else {
		if err := outputValidator.Validate(lintResult); err != nil {
			return nil, contractViolation("Output contract violation", outputValidator.ValidationErrors(lintResult), err)
		}
		idx.printText(lintResult)
	}

	if idx.Verbose && !idx.JSONOutput {
		idx.printf("\n=== Timing Summary ===\n")
		idx.printf("  scan:     %s\n", formatDuration(scanDuration))
		idx.printf("  compile:  %s\n", formatDuration(compileDuration))
		idx.printf("  facts:    %s\n", formatDuration(factsDuration))
		if idx.Config.LintEnabled() {
			idx.printf("  validate: %s\n", formatDuration(validateDuration))
			idx.printf("  lint:     %s\n", formatDuration(lintDuration))
		}
		idx.printf("  total:    %s\n", formatDuration(time.Since(runStart)))
		if timing.Enabled() {
			idx.printf("  events:   %s\n", timingPath)
		}
	}
	timing.RecordStage("total", runStart, time.Since(runStart), "")
	if err := timing.Close(); err != nil {
		recordPipelineErr(fmt.Errorf("timing output: %w", err))
	}

	if len(pipelineErrs) > 0 {
		return lintResult, fmt.Errorf("pipeline errors:\n%s", formatPipelineErrors(pipelineErrs))
	}
	return lintResult, nil
}

// compileAll builds every file with a bounded number of workers. Outcomes
// come back sorted by path. root anchors artifact paths under output.dir.
func (idx *Indexer) compileAll(ctx context.Context, files []string, root string, timing *timingRecorder) ([]outcome, error) {
	limit := idx.Config.Analysis.MaxParallelFiles
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	var progressMu sync.Mutex
	progress := 0
	progressEnabled := idx.Verbose && !idx.JSONOutput
	if progressEnabled {
		idx.printf("\n=== Compile Progress ===\n")
	}

	outcomes := make([]outcome, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fileStart := time.Now()
			o := idx.compileFile(file, root)
			o.duration = time.Since(fileStart)
			outcomes[i] = o

			status := "compiled"
			if o.err != nil {
				status = "failed"
			}
			timing.RecordFile("compile", file, status, fileStart, o.duration)
			if progressEnabled {
				idx.emitProgress(&progressMu, &progress, len(files), o, status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].path < outcomes[j].path })
	return outcomes, nil
}

func (idx *Indexer) compileFile(path, root string) outcome {
	o := outcome{path: path}
	fail := func(err error) outcome {
		o.kind, o.line = classify(err)
		o.err = fmt.Errorf("%s: %w", path, err)
		return o
	}

	f, err := os.Open(path)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	build := compiler.Build
	if idx.SyntaxOnly {
		build = compiler.BuildSyntax
	}
	d, err := build(path, f)
	if err != nil {
		return fail(err)
	}

	artifacts, err := report.WriteArtifacts(d, idx.Config.Output, root)
	o.artifacts = artifacts
	if err != nil {
		return fail(err)
	}
	o.design = d
	return o
}

// classify maps a build error to its compile error kind and source line.
// Errors from outside the core are reported as io with no line.
func classify(err error) (string, int) {
	var (
		lexErr        *lexer.Error
		segmentErr    *parser.SegmentError
		parseErr      *parser.ParseError
		symbolErr     *netlist.SymbolError
		resolutionErr *netlist.ResolutionError
	)
	switch {
	case errors.As(err, &lexErr):
		return "lex", lexErr.Line
	case errors.As(err, &segmentErr):
		return "segment", segmentErr.Line
	case errors.As(err, &parseErr):
		return "parse", parseErr.Line
	case errors.As(err, &symbolErr):
		return "symbol", symbolErr.Line
	case errors.As(err, &resolutionErr):
		return "resolution", resolutionErr.Line
	default:
		return "io", 0
	}
}

func (idx *Indexer) printText(lintResult *LintResult) {
	if len(lintResult.CompileErrors) > 0 {
		idx.printf("\n=== Compile Errors ===\n")
		for _, e := range lintResult.CompileErrors {
			idx.printf("  ✗ [%s] %s: %s\n", e.Kind, e.File, e.Message)
		}
	}

	if len(lintResult.Violations) > 0 {
		idx.printf("\n=== Policy Violations ===\n")
		for _, v := range lintResult.Violations {
			icon := "ℹ"
			if v.Severity == "error" {
				icon = "✗"
			} else if v.Severity == "warning" {
				icon = "⚠"
			}
			idx.printf("%s [%s] %s:%d - %s\n", icon, v.Rule, v.File, v.Line, v.Message)
		}
	}

	if idx.Config.LintEnabled() {
		idx.printf("\n=== Policy Summary ===\n")
		idx.printf("  Errors:   %d\n", lintResult.Summary.Errors)
		idx.printf("  Warnings: %d\n", lintResult.Summary.Warnings)
		idx.printf("  Info:     %d\n", lintResult.Summary.Info)
	}

	idx.printf("\n=== Compile Summary ===\n")
	idx.printf("  Files:    %d\n", lintResult.Stats.Files)
	idx.printf("  Compiled: %d\n", lintResult.Stats.Compiled)
	idx.printf("  Failed:   %d\n", lintResult.Stats.Failed)
	idx.printf("  Wires:    %d\n", lintResult.Stats.Wires)
	idx.printf("  Nets:     %d\n", lintResult.Stats.Nets)
	idx.printf("  Gates:    %d\n", lintResult.Stats.Gates)
	idx.printf("  Pins:     %d\n", lintResult.Stats.Pins)

	if !idx.Verbose {
		return
	}

	idx.printf("\n=== Verbose: Artifacts ===\n")
	for _, fr := range lintResult.Files {
		if len(fr.Artifacts) == 0 {
			continue
		}
		idx.printf("  %s (%s)\n", fr.Path, fr.Status)
		for _, a := range fr.Artifacts {
			idx.printf("    %s\n", a)
		}
	}

	if lintResult.Changes != nil {
		idx.printf("\n=== Verbose: Changes Since Last Run ===\n")
		if lintResult.Changes.Empty() {
			idx.printf("  no changes\n")
			return
		}
		for _, line := range formatDelta(*lintResult.Changes) {
			idx.printf("  %s\n", line)
		}
	}
}

// formatDelta lists the per-table row counts of a non-empty delta.
func formatDelta(delta facts.Delta) []string {
	rows := []struct {
		name           string
		added, removed int
	}{
		{"files", len(delta.Added.Files), len(delta.Removed.Files)},
		{"wires", len(delta.Added.Wires), len(delta.Removed.Wires)},
		{"nets", len(delta.Added.Nets), len(delta.Removed.Nets)},
		{"gates", len(delta.Added.Gates), len(delta.Removed.Gates)},
		{"pins", len(delta.Added.Pins), len(delta.Removed.Pins)},
		{"connections", len(delta.Added.Connections), len(delta.Removed.Connections)},
	}
	var lines []string
	for _, r := range rows {
		if r.added == 0 && r.removed == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-12s +%d -%d", r.name+":", r.added, r.removed))
	}
	return lines
}

func formatPipelineErrors(errs []error) string {
	var b strings.Builder
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// applyPolicyResult copies the policy findings into the result. Rule
// configuration is applied once more here so that rules loaded from
// lint.policyDir obey "off" and severity overrides like the built-in ones;
// the summary is counted from what is kept.
func applyPolicyResult(lintResult *LintResult, result *policy.Result, cfg *config.Config) {
	if lintResult == nil || result == nil {
		return
	}

	byPath := make(map[string]*FileResult, len(lintResult.Files))
	for i := range lintResult.Files {
		byPath[lintResult.Files[i].Path] = &lintResult.Files[i]
	}

	lintResult.Violations = make([]policy.Violation, 0, len(result.Violations))
	lintResult.Summary = ResultSummary{}
	for _, v := range result.Violations {
		if cfg != nil {
			if !cfg.IsRuleEnabled(v.Rule) {
				continue
			}
			v.Severity = cfg.GetRuleSeverity(v.Rule, v.Severity)
		}
		lintResult.Violations = append(lintResult.Violations, v)
		lintResult.Summary.TotalViolations++

		fr := byPath[v.File]
		switch v.Severity {
		case "error":
			lintResult.Summary.Errors++
			if fr != nil {
				fr.Errors++
			}
		case "warning":
			lintResult.Summary.Warnings++
			if fr != nil {
				fr.Warnings++
			}
		case "info":
			lintResult.Summary.Info++
			if fr != nil {
				fr.Info++
			}
		}
	}
}

// contractViolation reports a schema failure, listing every problem when
// there is more than one.
func contractViolation(what string, problems []string, err error) error {
	if len(problems) <= 1 {
		return fmt.Errorf("CRITICAL: %s: %w", what, err)
	}
	var b strings.Builder
	for _, p := range problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return fmt.Errorf("CRITICAL: %s: %w%s", what, err, b.String())
}

func envBool(key string) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return val == "1" || val == "true" || val == "yes" || val == "on"
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.2fm", d.Minutes())
	default:
		return fmt.Sprintf("%.2fh", d.Hours())
	}
}

func (idx *Indexer) emitProgress(mu *sync.Mutex, progress *int, total int, o outcome, status string) {
	mu.Lock()
	defer mu.Unlock()
	*progress = *progress + 1
	idx.printf("  [%d/%d] %s (%s, %s)\n", *progress, total, o.path, status, formatDuration(o.duration))
	if o.design != nil {
		idx.printf("    module %s: %d wires, %d components\n", o.design.Module.Name, len(o.design.Wires), len(o.design.Components))
	}
}
