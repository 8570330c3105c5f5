package parser

import (
	"fmt"
	"strconv"

	"github.com/robert-at-pretension-io/evlc/internal/lexer"
)

type componentState int

const (
	compInit componentState = iota
	compType
	compName
	compPins
	compPinName
	compBus
	compBusMSB
	compBusColon
	compBusLSB
	compBusDone
	compPinsDone
	compDone
)

func (s componentState) String() string {
	switch s {
	case compInit:
		return "Init"
	case compType:
		return "Type"
	case compName:
		return "Name"
	case compPins:
		return "Pins"
	case compPinName:
		return "PinName"
	case compBus:
		return "Bus"
	case compBusMSB:
		return "BusMsb"
	case compBusColon:
		return "BusColon"
	case compBusLSB:
		return "BusLsb"
	case compBusDone:
		return "BusDone"
	case compPinsDone:
		return "PinsDone"
	case compDone:
		return "Done"
	}
	return fmt.Sprintf("componentState(%d)", int(s))
}

// ParseComponent parses one component instantiation:
//
//	NAME [NAME] '(' pin_ref (',' pin_ref)* ')' ';'
//	pin_ref := NAME [ '[' NUMBER [':' NUMBER] ']' ]
func ParseComponent(s *Statement) (ComponentDecl, error) {
	line := s.Line()
	var comp ComponentDecl
	var pin PinRef
	state := compInit

	number := func(t lexer.Token) (*int, error) {
		if t.Kind != lexer.Number {
			return nil, unexpected(ComponentStatement, state, t, "NUMBER")
		}
		n, err := strconv.Atoi(t.Text)
		if err != nil {
			return nil, unexpected(ComponentStatement, state, t, "NUMBER in range")
		}
		return &n, nil
	}

	for len(s.Tokens) > 0 && state != compDone {
		t := next(s)
		switch state {
		case compInit:
			if t.Kind != lexer.Name {
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "NAME")
			}
			comp = ComponentDecl{Type: t.Text, Line: t.Line}
			state = compType

		case compType:
			switch {
			case t.Kind == lexer.Name:
				comp.Instance = t.Text
				state = compName
			case t.Is("("):
				state = compPins
			default:
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "NAME", "'('")
			}

		case compName:
			if !t.Is("(") {
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "'('")
			}
			state = compPins

		case compPins:
			if t.Kind != lexer.Name {
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "NAME")
			}
			pin = PinRef{Name: t.Text, Line: t.Line}
			state = compPinName

		case compPinName:
			switch {
			case t.Is(","):
				comp.Pins = append(comp.Pins, pin)
				state = compPins
			case t.Is(")"):
				comp.Pins = append(comp.Pins, pin)
				state = compPinsDone
			case t.Is("["):
				state = compBus
			default:
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "','", "')'", "'['")
			}

		case compBus:
			msb, err := number(t)
			if err != nil {
				return ComponentDecl{}, err
			}
			pin.MSB = msb
			state = compBusMSB

		case compBusMSB:
			switch {
			case t.Is(":"):
				state = compBusColon
			case t.Is("]"):
				state = compBusDone
			default:
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "':'", "']'")
			}

		case compBusColon:
			lsb, err := number(t)
			if err != nil {
				return ComponentDecl{}, err
			}
			pin.LSB = lsb
			state = compBusLSB

		case compBusLSB:
			if !t.Is("]") {
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "']'")
			}
			state = compBusDone

		case compBusDone:
			switch {
			case t.Is(")"):
				comp.Pins = append(comp.Pins, pin)
				state = compPinsDone
			case t.Is(","):
				comp.Pins = append(comp.Pins, pin)
				state = compPins
			default:
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "')'", "','")
			}

		case compPinsDone:
			if !t.Is(";") {
				return ComponentDecl{}, unexpected(ComponentStatement, state, t, "';'")
			}
			state = compDone

		default:
			panic("BUG: unhandled component state " + state.String())
		}
	}

	if len(s.Tokens) > 0 || state != compDone {
		return ComponentDecl{}, incomplete(ComponentStatement, state, s, line)
	}
	return comp, nil
}
