package netlist

import (
	"fmt"
	"strconv"

	"github.com/robert-at-pretension-io/evlc/internal/parser"
)

////////////////////////////////////////////////////////////////////////////////

// Net is one scalar connection point. Bit is -1 for a scalar wire.
type Net struct {
	Name string
	Wire string
	Bit  int
	Pins []PinKey
}

// Fanout is the number of pins attached to the net.
func (n *Net) Fanout() int {
	return len(n.Pins)
}

// PinKey locates a pin by gate position and pin index within the gate
type PinKey struct {
	Gate int
	Pin  int
}

// Pin is one terminal of a gate. Nets holds indices into the owning
// netlist's net arena, in resolution order; its length is the pin width.
type Pin struct {
	Gate  int
	Index int
	Ref   parser.PinRef
	Nets  []int
}

// Width is the number of bits the pin connects.
func (p *Pin) Width() int {
	return len(p.Nets)
}

// Gate is one component instance; it owns its pins
type Gate struct {
	Type     string
	Instance string
	Line     int
	Pins     []*Pin
}

// Label renders the type followed by the instance name when present.
func (g *Gate) Label() string {
	if g.Instance == "" {
		return g.Type
	}
	return g.Type + " " + g.Instance
}

////////////////////////////////////////////////////////////////////////////////

// ResolutionError reports a pin reference that cannot be bound to nets
type ResolutionError struct {
	Gate string
	Pin  int
	Ref  string
	Line int
	Msg  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("line %d: %s pin %d (%s): %s", e.Line, e.Gate, e.Pin, e.Ref, e.Msg)
}

////////////////////////////////////////////////////////////////////////////////

// Netlist owns every net and gate of one module
type Netlist struct {
	Name     string
	Nets     []*Net
	Gates    []*Gate
	netIndex map[string]int
}

// NetName is the name of bit i of a bus wire.
func NetName(wire string, i int) string {
	return wire + "[" + strconv.Itoa(i) + "]"
}

// New materializes nets for every wire, then a gate per component. All nets
// exist before any pin is resolved.
func New(name string, wires *WireTable, components []parser.ComponentDecl) (*Netlist, error) {
	// Every wire yields at least one net.
	n := &Netlist{
		Name:     name,
		netIndex: make(map[string]int, wires.Len()),
		Nets:     make([]*Net, 0, wires.Len()),
	}

	for _, w := range wires.Names() {
		width, _ := wires.Width(w)
		if width == 1 {
			n.createNet(w, w, -1)
			continue
		}
		for i := 0; i < width; i++ {
			n.createNet(NetName(w, i), w, i)
		}
	}

	for _, comp := range components {
		if err := n.createGate(comp, wires); err != nil {
			return nil, err
		}
	}

	return n, nil
}

func (n *Netlist) createNet(name, wire string, bit int) {
	if _, ok := n.netIndex[name]; ok {
		panic("BUG: net created twice: " + name)
	}
	n.netIndex[name] = len(n.Nets)
	n.Nets = append(n.Nets, &Net{Name: name, Wire: wire, Bit: bit})
}

func (n *Netlist) createGate(comp parser.ComponentDecl, wires *WireTable) error {
	g := &Gate{
		Type:     comp.Type,
		Instance: comp.Instance,
		Line:     comp.Line,
	}
	gi := len(n.Gates)
	n.Gates = append(n.Gates, g)

	for idx, ref := range comp.Pins {
		p := &Pin{Gate: gi, Index: idx, Ref: ref}
		g.Pins = append(g.Pins, p)

		names, err := resolve(ref, wires)
		if err != nil {
			return &ResolutionError{Gate: g.Label(), Pin: idx, Ref: ref.String(), Line: ref.Line, Msg: err.Error()}
		}
		for _, name := range names {
			ni, ok := n.netIndex[name]
			if !ok {
				return &ResolutionError{Gate: g.Label(), Pin: idx, Ref: ref.String(), Line: ref.Line,
					Msg: fmt.Sprintf("net '%s' does not exist", name)}
			}
			n.connect(ni, p)
		}
	}
	return nil
}

// connect records the attachment on both the net and the pin.
func (n *Netlist) connect(ni int, p *Pin) {
	net := n.Nets[ni]
	net.Pins = append(net.Pins, PinKey{Gate: p.Gate, Pin: p.Index})
	p.Nets = append(p.Nets, ni)
}

// resolve returns the net names a pin reference attaches to, low bit first.
func resolve(ref parser.PinRef, wires *WireTable) ([]string, error) {
	width, ok := wires.Width(ref.Name)
	if !ok {
		return nil, fmt.Errorf("wire '%s' is not declared", ref.Name)
	}

	switch ref.Shape() {
	case parser.WholeWire:
		if width == 1 {
			return []string{ref.Name}, nil
		}
		names := make([]string, 0, width)
		for i := 0; i < width; i++ {
			names = append(names, NetName(ref.Name, i))
		}
		return names, nil

	case parser.SingleBit:
		bit := *ref.MSB
		if width == 1 {
			return nil, fmt.Errorf("wire '%s' is not a bus", ref.Name)
		}
		if bit >= width {
			return nil, fmt.Errorf("bit %d is out of range for wire '%s' [%d:0]", bit, ref.Name, width-1)
		}
		return []string{NetName(ref.Name, bit)}, nil

	case parser.BitRange:
		msb, lsb := *ref.MSB, *ref.LSB
		if width == 1 {
			return nil, fmt.Errorf("wire '%s' is not a bus", ref.Name)
		}
		if lsb > msb {
			return nil, fmt.Errorf("range [%d:%d] has lsb above msb", msb, lsb)
		}
		if msb >= width {
			return nil, fmt.Errorf("range [%d:%d] is out of range for wire '%s' [%d:0]", msb, lsb, ref.Name, width-1)
		}
		names := make([]string, 0, msb-lsb+1)
		for i := lsb; i <= msb; i++ {
			names = append(names, NetName(ref.Name, i))
		}
		return names, nil
	}
	panic("BUG: unknown pin shape")
}

////////////////////////////////////////////////////////////////////////////////

// Net looks up a net by name.
func (n *Netlist) Net(name string) (*Net, bool) {
	i, ok := n.netIndex[name]
	if !ok {
		return nil, false
	}
	return n.Nets[i], true
}

// Pin returns the pin a key refers to.
func (n *Netlist) Pin(k PinKey) *Pin {
	return n.Gates[k.Gate].Pins[k.Pin]
}

// PinNets returns the nets a pin resolves to, in resolution order.
func (n *Netlist) PinNets(p *Pin) []*Net {
	out := make([]*Net, 0, len(p.Nets))
	for _, ni := range p.Nets {
		out = append(out, n.Nets[ni])
	}
	return out
}

func (n Netlist) String() string {
	pins := 0
	for _, g := range n.Gates {
		pins += len(g.Pins)
	}
	return fmt.Sprintf("nl:%q Nets:%d Gates:%d Pins:%d", n.Name, len(n.Nets), len(n.Gates), pins)
}
