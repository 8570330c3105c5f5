// =============================================================================
// evlc - EVL front-end compiler
// =============================================================================
//
// Turns structural EVL modules into bit-level netlists and checks them.
//
// THE PIPELINE:
//   1. Lexer splits each line into NAME / NUMBER / SINGLE tokens
//   2. Segmenter groups tokens into module, wire, component statements
//   3. Statement FSMs parse declarations
//   4. Netlist builder expands buses into scalar nets and wires up pins
//   5. CUE validator enforces the fact table contract
//   6. OPA evaluates lint rules against the fact tables
//
// WHEN A NETLIST LOOKS WRONG:
//   Read the artifacts in pipeline order: .tokens, .statements, .syntax,
//   then .netlist. The first one that disagrees with the source is the stage
//   to fix.
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robert-at-pretension-io/evlc/internal/config"
	"github.com/robert-at-pretension-io/evlc/internal/indexer"
)

type options struct {
	path       string
	configPath string
	verbose    bool
	jsonOutput bool
	syntaxOnly bool
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
		return
	case "-h", "--help", "help":
		printUsage()
		return
	}

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}
	os.Exit(runCompile(opts))
}

func parseArgs(args []string) (options, error) {
	var opts options
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-v", "--verbose":
			opts.verbose = true
		case "--json":
			opts.jsonOutput = true
		case "--syntax-only":
			opts.syntaxOnly = true
		case "-c", "--config":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%s needs a config file", arg)
			}
			i++
			opts.configPath = args[i]
		default:
			if len(arg) > 1 && arg[0] == '-' {
				return opts, fmt.Errorf("unknown option %s", arg)
			}
			if opts.path != "" {
				return opts, fmt.Errorf("only one path may be given")
			}
			opts.path = arg
		}
	}
	if opts.path == "" {
		return opts, fmt.Errorf("missing path")
	}
	return opts, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: evlc [command] [options] <path>

Commands:
  init              Create an evlc.json configuration file
  <path>            Compile an .evl file, or every .evl file under a directory

Options:
  -v, --verbose     Enable verbose output
  -c, --config      Specify config file: evlc -c config.json <path>
  --json            Print the result as JSON
  --syntax-only     Stop after parsing; no netlist is built
  -h, --help        Show this help message

Output:
  For each source file evlc writes <file>.tokens, <file>.statements,
  <file>.syntax and <file>.netlist (see output in evlc.json).

Configuration:
  evlc looks for configuration in:
    1. ./evlc.json
    2. ./.evlc.json
    3. <path>/evlc.json
    4. ~/.config/evlc/config.json

  Run 'evlc init' to create a default configuration file.`)
}

func runInit() {
	configPath := "evlc.json"

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - Source file patterns")
	fmt.Println("  - Which artifacts are written")
	fmt.Println("  - Lint rule severities")
}

func loadConfig(opts options) (*config.Config, error) {
	if opts.configPath != "" {
		cfg, err := config.LoadFile(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", opts.configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(opts.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	return cfg, nil
}

// runCompile returns the process exit code.
func runCompile(opts options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	idx := indexer.NewWithConfig(cfg)
	idx.Verbose = opts.verbose
	idx.JSONOutput = opts.jsonOutput
	idx.SyntaxOnly = opts.syntaxOnly

	result, err := idx.Run(context.Background(), opts.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if result.Failed() {
		return 1
	}
	return 0
}
