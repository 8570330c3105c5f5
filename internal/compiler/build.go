package compiler

import (
	"fmt"
	"io"

	"github.com/robert-at-pretension-io/evlc/internal/lexer"
	"github.com/robert-at-pretension-io/evlc/internal/netlist"
	"github.com/robert-at-pretension-io/evlc/internal/parser"
)

// StatementInfo records a statement's shape before parsing drains it
type StatementInfo struct {
	Kind   parser.StatementKind
	Tokens int
	Line   int
}

// Design is everything produced from one source file. Fields are populated
// by Build and are not modified afterwards.
type Design struct {
	Path       string
	Module     parser.ModuleDecl
	Wires      []parser.WireDecl
	Components []parser.ComponentDecl
	Statements []StatementInfo
	Tokens     []lexer.Token

	// Closed reports whether an endmodule statement was reached
	Closed bool

	// Netlist is nil for a syntax-only build
	Netlist *netlist.Netlist
}

// Build compiles one module. The first error of any stage is returned
// unchanged and no design is produced.
func Build(path string, r io.Reader) (*Design, error) {
	d, err := BuildSyntax(path, r)
	if err != nil {
		return nil, err
	}

	wires, err := netlist.NewWireTable(d.Wires)
	if err != nil {
		return nil, err
	}
	nl, err := netlist.New(d.Module.Name, wires, d.Components)
	if err != nil {
		return nil, err
	}
	d.Netlist = nl
	return d, nil
}

// BuildSyntax lexes, segments and parses a module without building its
// netlist.
func BuildSyntax(path string, r io.Reader) (*Design, error) {
	tokens, err := lexer.LexFile(r)
	if err != nil {
		return nil, err
	}

	d := &Design{
		Path:   path,
		Tokens: make([]lexer.Token, len(tokens)),
	}
	copy(d.Tokens, tokens)

	statements, err := parser.Segment(&tokens)
	if err != nil {
		return nil, err
	}
	for _, s := range statements {
		d.Statements = append(d.Statements, StatementInfo{
			Kind:   s.Kind,
			Tokens: len(s.Tokens),
			Line:   s.Line(),
		})
	}

	if err := d.parse(statements); err != nil {
		return nil, err
	}
	return d, nil
}

// parse walks statements up to the first endmodule. The module statement
// must come first and only once.
func (d *Design) parse(statements []parser.Statement) error {
	if len(statements) == 0 {
		return &parser.ParseError{Statement: parser.ModuleStatement, State: "Init"}
	}

	seenModule := false
	for i := range statements {
		s := &statements[i]
		if !seenModule && s.Kind != parser.ModuleStatement {
			return misplaced(s, "'module'")
		}

		switch s.Kind {
		case parser.ModuleStatement:
			if seenModule {
				return misplaced(s, "NAME", "'wire'", "'endmodule'")
			}
			decl, err := parser.ParseModule(s)
			if err != nil {
				return err
			}
			d.Module = decl
			seenModule = true

		case parser.WireStatement:
			wires, err := parser.ParseWire(s)
			if err != nil {
				return err
			}
			d.Wires = append(d.Wires, wires...)

		case parser.ComponentStatement:
			comp, err := parser.ParseComponent(s)
			if err != nil {
				return err
			}
			d.Components = append(d.Components, comp)

		case parser.EndModuleStatement:
			d.Closed = true
			return nil

		default:
			panic(fmt.Sprintf("BUG: unhandled statement kind %s", s.Kind))
		}
	}
	return nil
}

func misplaced(s *parser.Statement, expected ...string) *parser.ParseError {
	return &parser.ParseError{
		Line:      s.Line(),
		Statement: s.Kind,
		State:     "Init",
		Expected:  expected,
		Found:     s.Tokens[0].Text,
	}
}
