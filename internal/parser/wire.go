package parser

import (
	"fmt"
	"math"
	"strconv"

	"github.com/robert-at-pretension-io/evlc/internal/lexer"
)

type wireState int

const (
	wireInit wireState = iota
	wireWire
	wireWires
	wireName
	wireBus
	wireBusMSB
	wireBusColon
	wireBusLSB
	wireBusDone
	wireDone
)

func (s wireState) String() string {
	switch s {
	case wireInit:
		return "Init"
	case wireWire:
		return "Wire"
	case wireWires:
		return "Wires"
	case wireName:
		return "WireName"
	case wireBus:
		return "Bus"
	case wireBusMSB:
		return "BusMsb"
	case wireBusColon:
		return "BusColon"
	case wireBusLSB:
		return "BusLsb"
	case wireBusDone:
		return "BusDone"
	case wireDone:
		return "Done"
	}
	return fmt.Sprintf("wireState(%d)", int(s))
}

// ParseWire parses one wire statement. Every name yields a WireDecl at the
// width active when the name was seen; a bus range applies to the names
// that follow it in the same statement.
func ParseWire(s *Statement) ([]WireDecl, error) {
	line := s.Line()
	var wires []WireDecl
	width := 1
	state := wireInit

	for len(s.Tokens) > 0 && state != wireDone {
		t := next(s)
		switch state {
		case wireInit:
			if !t.Is("wire") {
				return nil, unexpected(WireStatement, state, t, "'wire'")
			}
			state = wireWire

		case wireWire, wireWires:
			switch {
			case t.Kind == lexer.Name:
				wires = append(wires, WireDecl{Name: t.Text, Width: width, Line: t.Line})
				state = wireName
			case t.Is("["):
				state = wireBus
			default:
				return nil, unexpected(WireStatement, state, t, "NAME", "'['")
			}

		case wireName:
			switch {
			case t.Is(","):
				state = wireWires
			case t.Is(";"):
				state = wireDone
			default:
				return nil, unexpected(WireStatement, state, t, "','", "';'")
			}

		case wireBus:
			if t.Kind != lexer.Number {
				return nil, unexpected(WireStatement, state, t, "NUMBER")
			}
			msb, err := strconv.Atoi(t.Text)
			// msb+1 must still be a valid width
			if err != nil || msb == math.MaxInt {
				return nil, unexpected(WireStatement, state, t, "NUMBER in range")
			}
			width = msb + 1
			state = wireBusMSB

		case wireBusMSB:
			if !t.Is(":") {
				return nil, unexpected(WireStatement, state, t, "':'")
			}
			state = wireBusColon

		case wireBusColon:
			if t.Kind != lexer.Number || t.Text != "0" {
				return nil, unexpected(WireStatement, state, t, "'0'")
			}
			state = wireBusLSB

		case wireBusLSB:
			if !t.Is("]") {
				return nil, unexpected(WireStatement, state, t, "']'")
			}
			state = wireBusDone

		case wireBusDone:
			if t.Kind != lexer.Name {
				return nil, unexpected(WireStatement, state, t, "NAME")
			}
			wires = append(wires, WireDecl{Name: t.Text, Width: width, Line: t.Line})
			state = wireName

		default:
			panic("BUG: unhandled wire state " + state.String())
		}
	}

	if len(s.Tokens) > 0 || state != wireDone {
		return nil, incomplete(WireStatement, state, s, line)
	}
	return wires, nil
}
