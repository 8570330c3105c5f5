package netlist

import (
	"fmt"

	"github.com/robert-at-pretension-io/evlc/internal/parser"
)

// SymbolError reports a wire declared more than once
type SymbolError struct {
	Name string
	Line int
	// PrevLine is the line of the first declaration
	PrevLine int
}

func (e *SymbolError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: wire '%s' is already defined (first defined on line %d)", e.Line, e.Name, e.PrevLine)
	}
	return fmt.Sprintf("wire '%s' is already defined", e.Name)
}

// WireTable maps each declared wire name to its width
type WireTable struct {
	widths map[string]int
	lines  map[string]int
	order  []string
}

// NewWireTable builds the table from all wire declarations. Any repeated
// name is an error, even with an identical width.
func NewWireTable(wires []parser.WireDecl) (*WireTable, error) {
	wt := &WireTable{
		widths: make(map[string]int, len(wires)),
		lines:  make(map[string]int, len(wires)),
	}
	for _, w := range wires {
		if _, ok := wt.widths[w.Name]; ok {
			return nil, &SymbolError{Name: w.Name, Line: w.Line, PrevLine: wt.lines[w.Name]}
		}
		if w.Width < 1 {
			return nil, fmt.Errorf("line %d: wire '%s' has invalid width %d", w.Line, w.Name, w.Width)
		}
		wt.widths[w.Name] = w.Width
		wt.lines[w.Name] = w.Line
		wt.order = append(wt.order, w.Name)
	}
	return wt, nil
}

// Width returns the width of a wire and whether it is declared.
func (wt *WireTable) Width(name string) (int, bool) {
	w, ok := wt.widths[name]
	return w, ok
}

// Names returns wire names in declaration order.
func (wt *WireTable) Names() []string {
	out := make([]string, len(wt.order))
	copy(out, wt.order)
	return out
}

// Len returns the number of declared wires.
func (wt *WireTable) Len() int {
	return len(wt.order)
}
