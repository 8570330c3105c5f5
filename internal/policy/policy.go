package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"github.com/robert-at-pretension-io/evlc/internal/config"
	"github.com/robert-at-pretension-io/evlc/internal/facts"
)

//go:embed evl.rego
var builtinPolicy string

const (
	violationsQuery = "data.evl.lint.all_violations"
	summaryQuery    = "data.evl.lint.summary"
)

// Engine evaluates OPA policies against EVL fact tables
type Engine struct {
	queries map[string]rego.PreparedEvalQuery
}

// Violation represents a policy violation
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation
	Summary    Summary
}

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// Input is the data structure passed to OPA: the fact tables at the top
// level plus the rule configuration
type Input struct {
	facts.Tables
	Config RuleConfig `json:"config"`
}

// RuleConfig carries per-rule severity overrides into the policy
type RuleConfig struct {
	Rules map[string]string `json:"rules"`
}

// NewInput pairs fact tables with the lint rules of cfg. A nil cfg uses the
// built-in severities.
func NewInput(tables facts.Tables, cfg *config.Config) Input {
	rules := map[string]string{}
	if cfg != nil {
		for rule, severity := range cfg.Lint.Rules {
			rules[rule] = severity
		}
	}
	return Input{Tables: tables, Config: RuleConfig{Rules: rules}}
}

// New creates a policy engine from the built-in policy plus every .rego file
// in policyDir. An empty policyDir loads only the built-in policy.
func New(policyDir string) (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
	}

	modules := []func(*rego.Rego){rego.Module("evl.rego", builtinPolicy)}

	if policyDir != "" {
		files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("finding policy files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", policyDir)
		}
		sort.Strings(files)
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			modules = append(modules, rego.Module(f, string(content)))
		}
	}

	for name, q := range map[string]string{"violations": violationsQuery, "summary": summaryQuery} {
		opts := append(append([]func(*rego.Rego){}, modules...), rego.Query(q))
		query, err := rego.New(opts...).PrepareForEval(context.Background())
		if err != nil {
			return nil, fmt.Errorf("preparing %s query: %w", name, err)
		}
		engine.queries[name] = query
	}

	return engine, nil
}

// Evaluate runs the policies against the input data
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	inputMap, err := structToMap(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{Violations: []Violation{}}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					File:     getString(vmap, "file"),
					Line:     getInt(vmap, "line"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}
	sort.SliceStable(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Message < b.Message
	})

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
				Info:            getInt(smap, "info"),
			}
		}
	}

	return result, nil
}

// Helper functions
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case json.Number:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}
