package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceExt is the extension of EVL source files
const SourceExt = ".evl"

// ResolveFiles expands the Files patterns under rootPath, removes Exclude
// matches and ignored files, and returns the EVL sources in sorted order.
// A rootPath naming a single file resolves to just that file.
func (c *Config) ResolveFiles(rootPath string) ([]string, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Clean(rootPath)}, nil
	}

	patterns := c.Files
	if len(patterns) == 0 {
		patterns = DefaultFilePatterns
	}

	fileSet := make(map[string]bool)
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}

		matches, err := expandGlob(pattern)
		if err != nil {
			// Silently skip invalid patterns
			continue
		}

		for _, match := range matches {
			if strings.ToLower(filepath.Ext(match)) == SourceExt {
				fileSet[filepath.Clean(match)] = true
			}
		}
	}

	for _, pattern := range c.Exclude {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}

		matches, err := expandGlob(pattern)
		if err != nil {
			continue
		}

		for _, match := range matches {
			delete(fileSet, filepath.Clean(match))
		}
	}

	files := make([]string, 0, len(fileSet))
	for f := range fileSet {
		if !c.ShouldIgnoreFile(f) {
			files = append(files, f)
		}
	}
	sort.Strings(files)

	return files, nil
}

// expandGlob expands a glob pattern, handling ** for recursive matching
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return expandDoubleStarGlob(pattern)
	}

	return filepath.Glob(pattern)
}

// expandDoubleStarGlob handles ** patterns by walking the directory tree
func expandDoubleStarGlob(pattern string) ([]string, error) {
	var results []string

	parts := strings.SplitN(pattern, "**", 2)
	if len(parts) != 2 {
		return filepath.Glob(pattern)
	}

	baseDir := filepath.Clean(parts[0])
	if baseDir == "" {
		baseDir = "."
	}
	suffix := parts[1]
	if strings.HasPrefix(suffix, string(filepath.Separator)) {
		suffix = suffix[1:]
	}

	err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}

		if info.IsDir() {
			return nil
		}

		if suffix == "" {
			results = append(results, path)
			return nil
		}

		relPath, err := filepath.Rel(baseDir, path)
		if err != nil {
			return nil
		}

		if matchSuffix(relPath, suffix) {
			results = append(results, path)
		}

		return nil
	})

	return results, err
}

// matchSuffix checks if a path matches a suffix pattern (after **)
func matchSuffix(path, pattern string) bool {
	pattern = strings.TrimPrefix(pattern, string(filepath.Separator))

	// If pattern has no directory component, match against filename
	if !strings.Contains(pattern, string(filepath.Separator)) {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		return matched
	}

	matched, _ := filepath.Match(pattern, path)
	if matched {
		return true
	}

	// Also try matching just the suffix
	if len(path) > len(pattern) {
		suffix := path[len(path)-len(pattern):]
		matched, _ = filepath.Match(pattern, suffix)
		return matched
	}

	return false
}
