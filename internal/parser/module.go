package parser

import (
	"fmt"

	"github.com/robert-at-pretension-io/evlc/internal/lexer"
)

type moduleState int

const (
	modInit moduleState = iota
	modModule
	modName
	modDone
)

func (s moduleState) String() string {
	switch s {
	case modInit:
		return "Init"
	case modModule:
		return "Module"
	case modName:
		return "Name"
	case modDone:
		return "Done"
	}
	return fmt.Sprintf("moduleState(%d)", int(s))
}

// ParseModule parses `module NAME ;`.
func ParseModule(s *Statement) (ModuleDecl, error) {
	line := s.Line()
	var decl ModuleDecl
	state := modInit

	for len(s.Tokens) > 0 && state != modDone {
		t := next(s)
		switch state {
		case modInit:
			if !t.Is("module") {
				return ModuleDecl{}, unexpected(ModuleStatement, state, t, "'module'")
			}
			state = modModule
		case modModule:
			if t.Kind != lexer.Name {
				return ModuleDecl{}, unexpected(ModuleStatement, state, t, "NAME")
			}
			decl = ModuleDecl{Name: t.Text, Line: t.Line}
			state = modName
		case modName:
			if !t.Is(";") {
				return ModuleDecl{}, unexpected(ModuleStatement, state, t, "';'")
			}
			state = modDone
		}
	}

	if len(s.Tokens) > 0 || state != modDone {
		return ModuleDecl{}, incomplete(ModuleStatement, state, s, line)
	}
	return decl, nil
}
