package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-at-pretension-io/evlc/internal/compiler"
	"github.com/robert-at-pretension-io/evlc/internal/config"
	"github.com/robert-at-pretension-io/evlc/internal/lexer"
	"github.com/robert-at-pretension-io/evlc/internal/parser"
)

// ErrNoNetlist is returned when a netlist report is requested for a design
// built without one.
var ErrNoNetlist = errors.New("design has no netlist")

// WriteTokens writes one `KIND text` line per token.
func WriteTokens(w io.Writer, tokens []lexer.Token) error {
	bw := bufio.NewWriter(w)
	for _, t := range tokens {
		fmt.Fprintf(bw, "%s %s\n", t.Kind, t.Text)
	}
	return bw.Flush()
}

// WriteStatements writes one line per statement, numbered from 1.
func WriteStatements(w io.Writer, statements []compiler.StatementInfo) error {
	bw := bufio.NewWriter(w)
	for i, s := range statements {
		if s.Kind == parser.EndModuleStatement {
			fmt.Fprintf(bw, "statement %d: %s\n", i+1, s.Kind)
			continue
		}
		fmt.Fprintf(bw, "statement %d: %s, %d tokens\n", i+1, s.Kind, s.Tokens)
	}
	return bw.Flush()
}

// WriteSyntax echoes the parsed declarations of a design.
func WriteSyntax(w io.Writer, d *compiler.Design) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "module %s\n", d.Module.Name)

	fmt.Fprintf(bw, "wires %d\n", len(d.Wires))
	for _, wire := range d.Wires {
		fmt.Fprintf(bw, "  wire %s %d\n", wire.Name, wire.Width)
	}

	fmt.Fprintf(bw, "components %d\n", len(d.Components))
	for _, c := range d.Components {
		fmt.Fprintf(bw, "  component %s %d\n", c.Label(), len(c.Pins))
		for _, p := range c.Pins {
			switch p.Shape() {
			case parser.WholeWire:
				fmt.Fprintf(bw, "    pin %s\n", p.Name)
			case parser.SingleBit:
				fmt.Fprintf(bw, "    pin %s %d\n", p.Name, *p.MSB)
			case parser.BitRange:
				fmt.Fprintf(bw, "    pin %s %d %d\n", p.Name, *p.MSB, *p.LSB)
			}
		}
	}

	return bw.Flush()
}

// WriteNetlist writes the module header followed by the netlist.
func WriteNetlist(w io.Writer, d *compiler.Design) error {
	if d.Netlist == nil {
		return ErrNoNetlist
	}
	if _, err := fmt.Fprintf(w, "module %s\n", d.Module.Name); err != nil {
		return err
	}
	return d.Netlist.Display(w)
}

// ArtifactPath is where an artifact of the given kind is written for source.
// Artifacts sit next to the source unless dir is set; then the source's path
// relative to root is mirrored under dir, so equal base names in different
// directories never share an artifact.
func ArtifactPath(source, root, dir, kind string) string {
	base := source
	if dir != "" {
		rel, err := filepath.Rel(root, source)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			rel = filepath.Base(source)
		}
		base = filepath.Join(dir, rel)
	}
	return base + "." + kind
}

// WriteArtifacts writes every artifact enabled in out and returns the paths
// written. root is the directory sources are resolved from; it only matters
// when out.Dir is set. The netlist artifact is skipped for syntax-only designs.
func WriteArtifacts(d *compiler.Design, out config.OutputConfig, root string) ([]string, error) {
	writers := []struct {
		kind  string
		write func(io.Writer) error
	}{
		{config.ArtifactTokens, func(w io.Writer) error { return WriteTokens(w, d.Tokens) }},
		{config.ArtifactStatements, func(w io.Writer) error { return WriteStatements(w, d.Statements) }},
		{config.ArtifactSyntax, func(w io.Writer) error { return WriteSyntax(w, d) }},
		{config.ArtifactNetlist, func(w io.Writer) error { return WriteNetlist(w, d) }},
	}

	written := []string{}
	for _, wr := range writers {
		if !out.Enabled(wr.kind) {
			continue
		}
		if wr.kind == config.ArtifactNetlist && d.Netlist == nil {
			continue
		}
		path := ArtifactPath(d.Path, root, out.Dir, wr.kind)
		if out.Dir != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return written, fmt.Errorf("creating output dir: %w", err)
			}
		}
		if err := writeFile(path, wr.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write into file %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
