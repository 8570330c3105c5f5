package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-at-pretension-io/evlc/internal/config"
	"github.com/robert-at-pretension-io/evlc/internal/facts"
	"github.com/robert-at-pretension-io/evlc/internal/indexer"
)

func main() {
	output := flag.String("output", "", "write facts JSON to file (default: stdout)")
	flag.StringVar(output, "o", "", "write facts JSON to file (shorthand)")
	deltaFrom := flag.String("delta-from", "", "previous facts JSON to compute delta from")
	deltaOut := flag.String("delta-out", "", "write delta JSON to file (requires --delta-from)")
	only := flag.String("files", "", "comma-separated source files to keep in the output (default: all)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: evl-facts [--output file] [--files a.evl,b.evl] [--delta-from prev.json --delta-out delta.json] <path>")
		os.Exit(1)
	}
	if (*deltaFrom == "") != (*deltaOut == "") {
		fmt.Fprintln(os.Stderr, "Error: --delta-from and --delta-out must be used together")
		os.Exit(1)
	}

	path := args[0]
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Facts only: no artifacts, snapshot or lint.
	cfg.DisableSideEffects()

	idx := indexer.NewWithConfig(cfg)
	idx.Out = io.Discard
	result, err := idx.Run(context.Background(), path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, e := range result.CompileErrors {
		fmt.Fprintf(os.Stderr, "Warning: %s: %s (left out of facts)\n", e.File, e.Message)
	}

	tables := result.Facts
	keep := fileSet(*only)
	if keep != nil {
		built := make(map[string]bool)
		for _, p := range tables.Paths() {
			built[p] = true
		}
		for f := range keep {
			if !built[f] {
				fmt.Fprintf(os.Stderr, "Warning: --files entry %s matches no compiled source\n", f)
			}
		}
		tables = facts.FilterTablesByFiles(tables, keep)
	}

	if *output != "" {
		if err := writeJSON(*output, tables); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing facts: %v\n", err)
			os.Exit(1)
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tables); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding facts: %v\n", err)
			os.Exit(1)
		}
	}

	if *deltaFrom != "" {
		prev, err := readTables(*deltaFrom)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading delta-from: %v\n", err)
			os.Exit(1)
		}
		delta := facts.ComputeDelta(prev, tables)
		if keep != nil {
			delta = facts.FilterDeltaByFiles(delta, keep)
		}
		if err := writeJSON(*deltaOut, delta); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing delta: %v\n", err)
			os.Exit(1)
		}
	}
}

// fileSet parses the --files list; nil means no filter.
func fileSet(list string) map[string]bool {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			set[filepath.Clean(f)] = true
		}
	}
	return set
}

func readTables(path string) (facts.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return facts.Tables{}, err
	}
	defer func() { _ = f.Close() }()

	var tables facts.Tables
	if err := json.NewDecoder(f).Decode(&tables); err != nil {
		return facts.Tables{}, err
	}
	return tables, nil
}

func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
