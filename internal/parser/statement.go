package parser

import (
	"fmt"

	"github.com/robert-at-pretension-io/evlc/internal/lexer"
)

// StatementKind tags a statement by its leading keyword
type StatementKind int

const (
	ModuleStatement StatementKind = iota
	WireStatement
	ComponentStatement
	EndModuleStatement
)

func (k StatementKind) String() string {
	switch k {
	case ModuleStatement:
		return "MODULE"
	case WireStatement:
		return "WIRE"
	case ComponentStatement:
		return "COMPONENT"
	case EndModuleStatement:
		return "ENDMODULE"
	}
	return fmt.Sprintf("StatementKind(%d)", int(k))
}

// Statement is a run of tokens terminated by ';' (or the lone endmodule
// keyword). Parsers drain Tokens front to back.
type Statement struct {
	Kind   StatementKind
	Tokens []lexer.Token
}

// Line returns the line of the leading token, or 0 for a drained statement.
func (s *Statement) Line() int {
	if len(s.Tokens) == 0 {
		return 0
	}
	return s.Tokens[0].Line
}

// SegmentError reports a token stream that cannot be grouped into statements
type SegmentError struct {
	Line int
	Msg  string
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Segment groups the token stream into statements. It consumes tokens: on
// return the slice pointed to by tokens is empty, or holds the remainder at
// the point of failure.
func Segment(tokens *[]lexer.Token) ([]Statement, error) {
	var statements []Statement
	for len(*tokens) > 0 {
		first := (*tokens)[0]
		if first.Kind != lexer.Name {
			return nil, &SegmentError{
				Line: first.Line,
				Msg:  fmt.Sprintf("need a NAME token but found '%s'", first.Text),
			}
		}

		switch first.Text {
		case "endmodule":
			statements = append(statements, Statement{
				Kind:   EndModuleStatement,
				Tokens: []lexer.Token{first},
			})
			*tokens = (*tokens)[1:]
			continue
		case "module":
			s, err := moveStatement(ModuleStatement, tokens)
			if err != nil {
				return nil, err
			}
			statements = append(statements, s)
		case "wire":
			s, err := moveStatement(WireStatement, tokens)
			if err != nil {
				return nil, err
			}
			statements = append(statements, s)
		default:
			s, err := moveStatement(ComponentStatement, tokens)
			if err != nil {
				return nil, err
			}
			statements = append(statements, s)
		}
	}
	return statements, nil
}

// moveStatement moves tokens up to and including the next ';' into a new
// statement of the given kind.
func moveStatement(kind StatementKind, tokens *[]lexer.Token) (Statement, error) {
	for i, t := range *tokens {
		if t.Kind == lexer.Punct && t.Text == ";" {
			moved := make([]lexer.Token, i+1)
			copy(moved, (*tokens)[:i+1])
			*tokens = (*tokens)[i+1:]
			return Statement{Kind: kind, Tokens: moved}, nil
		}
	}
	last := (*tokens)[len(*tokens)-1]
	return Statement{}, &SegmentError{
		Line: last.Line,
		Msg:  fmt.Sprintf("expected ';' to end %s statement starting on line %d", kind, (*tokens)[0].Line),
	}
}
