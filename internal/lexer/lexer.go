package lexer

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	plexer "github.com/alecthomas/participle/v2/lexer"
)

// Kind classifies a token
type Kind int

const (
	Name   Kind = iota // identifier or keyword
	Number             // unsigned decimal integer
	Punct              // one of ( ) [ ] : ; , = { }
)

func (k Kind) String() string {
	switch k {
	case Name:
		return "NAME"
	case Number:
		return "NUMBER"
	case Punct:
		return "SINGLE"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a single lexical item with the source line it came from
type Token struct {
	Kind Kind
	Text string
	Line int
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q (line %d)", t.Kind, t.Text, t.Line)
}

// Is reports whether t is the punctuation or keyword text s.
func (t Token) Is(s string) bool {
	return t.Text == s
}

// Error is a fatal lexical error
type Error struct {
	Line   int
	Column int
	Msg    string
}

func (e *Error) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// evlLexer is the rule table for one EVL source line. Rules are tried in
// order, so the comment rule must precede the lone slash rule.
var evlLexer = plexer.MustSimple([]plexer.SimpleRule{
	{Name: "Comment", Pattern: `//.*`},
	{Name: "Slash", Pattern: `/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Punct", Pattern: `[()\[\]:;,={}]`},
	{Name: "Name", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
	{Name: "Number", Pattern: `[0-9]+`},
})

var (
	symbols     = evlLexer.Symbols()
	commentType = symbols["Comment"]
	slashType   = symbols["Slash"]
	spaceType   = symbols["Whitespace"]
	punctType   = symbols["Punct"]
	nameType    = symbols["Name"]
	numberType  = symbols["Number"]
)

// LexLine tokenizes one source line and appends the tokens to the
// accumulator. lineNo is 1-based and attached to every token.
func LexLine(line string, lineNo int, tokens []Token) ([]Token, error) {
	lex, err := evlLexer.LexString("", line)
	if err != nil {
		return tokens, &Error{Line: lineNo, Msg: err.Error()}
	}
	// Tokens are classified as they are produced, so the leftmost
	// problem on the line is the one reported.
	for {
		t, err := lex.Next()
		if err != nil {
			var perr *plexer.Error
			if errors.As(err, &perr) {
				return tokens, &Error{Line: lineNo, Column: perr.Pos.Column, Msg: "invalid character"}
			}
			return tokens, &Error{Line: lineNo, Msg: err.Error()}
		}
		switch t.Type {
		case plexer.EOF:
			return tokens, nil
		case spaceType:
			continue
		case commentType:
			// rest of the line is a comment
			return tokens, nil
		case slashType:
			return tokens, &Error{Line: lineNo, Column: t.Pos.Column, Msg: "a single / is not allowed"}
		case punctType:
			tokens = append(tokens, Token{Kind: Punct, Text: t.Value, Line: lineNo})
		case nameType:
			tokens = append(tokens, Token{Kind: Name, Text: t.Value, Line: lineNo})
		case numberType:
			tokens = append(tokens, Token{Kind: Number, Text: t.Value, Line: lineNo})
		default:
			return tokens, &Error{Line: lineNo, Column: t.Pos.Column, Msg: "invalid character"}
		}
	}
}

// LexFile tokenizes a whole source, one line at a time.
func LexFile(r io.Reader) ([]Token, error) {
	var tokens []Token
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		var err error
		tokens, err = LexLine(scanner.Text(), lineNo, tokens)
		if err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	return tokens, nil
}
