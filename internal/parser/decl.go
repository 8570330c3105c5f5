package parser

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/evlc/internal/lexer"
)

// ModuleDecl is the parsed `module NAME;` statement
type ModuleDecl struct {
	Name string
	Line int
}

// WireDecl declares one wire. Width 1 is a scalar, larger widths are buses
// indexed [Width-1:0].
type WireDecl struct {
	Name  string
	Width int
	Line  int
}

// PinShape distinguishes the three forms of a pin reference
type PinShape int

const (
	WholeWire PinShape = iota // name
	SingleBit                 // name[msb]
	BitRange                  // name[msb:lsb]
)

// PinRef is a wire reference as written in a component instantiation.
// MSB and LSB are nil when omitted in the source.
type PinRef struct {
	Name string
	MSB  *int
	LSB  *int
	Line int
}

// Shape classifies the reference by which bounds are present.
func (p PinRef) Shape() PinShape {
	switch {
	case p.MSB == nil:
		return WholeWire
	case p.LSB == nil:
		return SingleBit
	default:
		return BitRange
	}
}

func (p PinRef) String() string {
	switch p.Shape() {
	case SingleBit:
		return fmt.Sprintf("%s[%d]", p.Name, *p.MSB)
	case BitRange:
		return fmt.Sprintf("%s[%d:%d]", p.Name, *p.MSB, *p.LSB)
	}
	return p.Name
}

// ComponentDecl is one component instantiation. Instance is empty when the
// source omits the instance name.
type ComponentDecl struct {
	Type     string
	Instance string
	Pins     []PinRef
	Line     int
}

// Label renders the type followed by the instance name when present.
func (c ComponentDecl) Label() string {
	if c.Instance == "" {
		return c.Type
	}
	return c.Type + " " + c.Instance
}

// ParseError reports an unexpected token inside one statement
type ParseError struct {
	Line      int
	Statement StatementKind
	State     string
	Expected  []string
	Found     string
}

func (e *ParseError) Error() string {
	if e.Found == "" {
		return fmt.Sprintf("line %d: malformed %s statement (state %s)", e.Line, e.Statement, e.State)
	}
	return fmt.Sprintf("line %d: need %s but found '%s' (%s statement, state %s)",
		e.Line, strings.Join(e.Expected, " or "), e.Found, e.Statement, e.State)
}

func unexpected(kind StatementKind, state fmt.Stringer, t lexer.Token, expected ...string) *ParseError {
	return &ParseError{
		Line:      t.Line,
		Statement: kind,
		State:     state.String(),
		Expected:  expected,
		Found:     t.Text,
	}
}

// incomplete reports a statement that ran out of tokens before reaching its
// terminal state, or that has tokens left over after it.
func incomplete(kind StatementKind, state fmt.Stringer, s *Statement, line int) *ParseError {
	e := &ParseError{
		Line:      line,
		Statement: kind,
		State:     state.String(),
	}
	if len(s.Tokens) > 0 {
		e.Line = s.Tokens[0].Line
		e.Found = s.Tokens[0].Text
		e.Expected = []string{"end of statement"}
	}
	return e
}

// next pops the front token of a statement.
func next(s *Statement) lexer.Token {
	t := s.Tokens[0]
	s.Tokens = s.Tokens[1:]
	return t
}
