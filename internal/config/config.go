package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration for evlc
type Config struct {
	// Files is a list of glob patterns for EVL sources, relative to the root
	Files []string `json:"files,omitempty"`

	// Exclude is a list of glob patterns removed from Files
	Exclude []string `json:"exclude,omitempty"`

	// Output controls which artifacts are written and where
	Output OutputConfig `json:"output,omitempty"`

	// Lint contains linting rule configuration
	Lint LintConfig `json:"lint,omitempty"`

	// Analysis contains analysis options
	Analysis AnalysisConfig `json:"analysis,omitempty"`
}

// OutputConfig selects the artifacts written next to each source file
type OutputConfig struct {
	// Dir receives the artifacts; empty means alongside the source
	Dir string `json:"dir,omitempty"`

	Tokens     *bool `json:"tokens,omitempty"`
	Statements *bool `json:"statements,omitempty"`
	Syntax     *bool `json:"syntax,omitempty"`
	Netlist    *bool `json:"netlist,omitempty"`
}

// LintConfig contains linting configuration
type LintConfig struct {
	// Enabled turns policy evaluation on or off
	Enabled *bool `json:"enabled,omitempty"`

	// Rules maps rule names to severity: "off", "info", "warning", "error"
	Rules map[string]string `json:"rules,omitempty"`

	// IgnorePatterns is a list of file patterns to skip entirely
	IgnorePatterns []string `json:"ignorePatterns,omitempty"`

	// PolicyDir holds extra .rego modules loaded next to the built-in policy
	PolicyDir string `json:"policyDir,omitempty"`
}

// CacheConfig controls the fact snapshot kept between runs
type CacheConfig struct {
	// Enabled turns on snapshot usage
	Enabled *bool `json:"enabled,omitempty"`

	// Dir is the cache directory (relative to project root if not absolute)
	Dir string `json:"dir,omitempty"`
}

// AnalysisConfig contains analysis options
type AnalysisConfig struct {
	// MaxParallelFiles limits concurrent file processing (0 = auto)
	MaxParallelFiles int `json:"maxParallelFiles,omitempty"`

	// Cache controls the fact snapshot used to report changes between runs
	Cache CacheConfig `json:"cache,omitempty"`
}

// DefaultCacheDir is used when analysis.cache.dir is unset
const DefaultCacheDir = ".evlc_cache"

// DefaultFilePatterns match every EVL file under the root
var DefaultFilePatterns = []string{"*.evl", "**/*.evl"}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Files:   append([]string(nil), DefaultFilePatterns...),
		Exclude: []string{},
		Output: OutputConfig{
			Tokens:     boolPtr(true),
			Statements: boolPtr(true),
			Syntax:     boolPtr(true),
			Netlist:    boolPtr(true),
		},
		Lint: LintConfig{
			Enabled:        boolPtr(true),
			Rules:          map[string]string{},
			IgnorePatterns: []string{},
		},
		Analysis: AnalysisConfig{
			MaxParallelFiles: 0, // auto
			Cache: CacheConfig{
				Enabled: boolPtr(true),
				Dir:     DefaultCacheDir,
			},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// Load finds and loads the configuration file
// Search order:
//  1. ./evlc.json (current working directory)
//  2. ./.evlc.json (current working directory)
//  3. <rootPath>/evlc.json (if different from cwd)
//  4. ~/.config/evlc/config.json
//
// Returns DefaultConfig if no config file is found
func Load(rootPath string) (*Config, error) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, "evlc.json"),
		filepath.Join(cwd, ".evlc.json"),
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			searchPaths = append(searchPaths,
				filepath.Join(rootPath, "evlc.json"),
				filepath.Join(rootPath, ".evlc.json"),
			)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "evlc", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for missing fields
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if len(c.Files) == 0 {
		c.Files = append([]string(nil), DefaultFilePatterns...)
	}

	for _, flag := range []**bool{&c.Output.Tokens, &c.Output.Statements, &c.Output.Syntax, &c.Output.Netlist, &c.Lint.Enabled, &c.Analysis.Cache.Enabled} {
		if *flag == nil {
			*flag = boolPtr(true)
		}
	}

	if c.Lint.Rules == nil {
		c.Lint.Rules = make(map[string]string)
	}
	if c.Analysis.MaxParallelFiles < 0 {
		c.Analysis.MaxParallelFiles = 0
	}
	if c.Analysis.Cache.Dir == "" {
		c.Analysis.Cache.Dir = DefaultCacheDir
	}
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// GetRuleSeverity returns the severity for a rule, or the default if not configured
func (c *Config) GetRuleSeverity(rule string, defaultSeverity string) string {
	if severity, ok := c.Lint.Rules[rule]; ok {
		return severity
	}
	return defaultSeverity
}

// IsRuleEnabled returns true if the rule is not set to "off"
func (c *Config) IsRuleEnabled(rule string) bool {
	if severity, ok := c.Lint.Rules[rule]; ok {
		return severity != "off"
	}
	return true // enabled by default
}

// DisableSideEffects turns off every artifact, the fact snapshot and lint.
// A run with the result only reads sources and builds fact tables.
func (c *Config) DisableSideEffects() {
	off := false
	c.Output.Tokens = &off
	c.Output.Statements = &off
	c.Output.Syntax = &off
	c.Output.Netlist = &off
	c.Analysis.Cache.Enabled = &off
	c.Lint.Enabled = &off
}

// LintEnabled reports whether policy evaluation runs at all.
func (c *Config) LintEnabled() bool {
	return c.Lint.Enabled == nil || *c.Lint.Enabled
}

// CacheEnabled reports whether the fact snapshot is read and written.
func (c *Config) CacheEnabled() bool {
	return c.Analysis.Cache.Enabled != nil && *c.Analysis.Cache.Enabled
}

// ResolveCacheDir returns the cache directory for a run rooted at rootPath.
func (c *Config) ResolveCacheDir(rootPath string) string {
	baseDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(rootPath)
	}
	cacheDir := c.Analysis.Cache.Dir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(baseDir, cacheDir)
	}
	return cacheDir
}

// ShouldIgnoreFile checks if a file should be skipped entirely
func (c *Config) ShouldIgnoreFile(filePath string) bool {
	for _, pattern := range c.Lint.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, filePath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(filePath)); matched {
			return true
		}
	}
	return false
}

// Artifact kinds understood by OutputConfig.Enabled
const (
	ArtifactTokens     = "tokens"
	ArtifactStatements = "statements"
	ArtifactSyntax     = "syntax"
	ArtifactNetlist    = "netlist"
)

// Enabled reports whether an artifact kind is written. Unset flags are on.
func (o OutputConfig) Enabled(kind string) bool {
	var flag *bool
	switch kind {
	case ArtifactTokens:
		flag = o.Tokens
	case ArtifactStatements:
		flag = o.Statements
	case ArtifactSyntax:
		flag = o.Syntax
	case ArtifactNetlist:
		flag = o.Netlist
	default:
		return false
	}
	return flag == nil || *flag
}
