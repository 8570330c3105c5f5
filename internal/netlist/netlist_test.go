package netlist

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/evlc/internal/lexer"
	"github.com/robert-at-pretension-io/evlc/internal/parser"
)

// declarations parses the wire and component statements of src.
func declarations(t *testing.T, src string) ([]parser.WireDecl, []parser.ComponentDecl) {
	t.Helper()
	tokens, err := lexer.LexFile(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LexFile: %v", err)
	}
	statements, err := parser.Segment(&tokens)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}

	var wires []parser.WireDecl
	var comps []parser.ComponentDecl
	for i := range statements {
		s := &statements[i]
		switch s.Kind {
		case parser.WireStatement:
			ws, err := parser.ParseWire(s)
			if err != nil {
				t.Fatalf("ParseWire: %v", err)
			}
			wires = append(wires, ws...)
		case parser.ComponentStatement:
			c, err := parser.ParseComponent(s)
			if err != nil {
				t.Fatalf("ParseComponent: %v", err)
			}
			comps = append(comps, c)
		}
	}
	return wires, comps
}

func build(t *testing.T, src string) (*Netlist, error) {
	t.Helper()
	wires, comps := declarations(t, src)
	wt, err := NewWireTable(wires)
	if err != nil {
		return nil, err
	}
	return New("m", wt, comps)
}

func mustBuild(t *testing.T, src string) *Netlist {
	t.Helper()
	nl, err := build(t, src)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return nl
}

func netNames(nl *Netlist, p *Pin) []string {
	var out []string
	for _, net := range nl.PinNets(p) {
		out = append(out, net.Name)
	}
	return out
}

func TestBusWireMaterializesBits(t *testing.T) {
	nl := mustBuild(t, "wire [3:0] w;")
	if len(nl.Nets) != 4 {
		t.Fatalf("expected 4 nets, got %d", len(nl.Nets))
	}
	for i, want := range []string{"w[0]", "w[1]", "w[2]", "w[3]"} {
		if nl.Nets[i].Name != want {
			t.Fatalf("net %d: expected %s, got %s", i, want, nl.Nets[i].Name)
		}
		if nl.Nets[i].Bit != i || nl.Nets[i].Wire != "w" {
			t.Fatalf("net %d: unexpected wire/bit %s/%d", i, nl.Nets[i].Wire, nl.Nets[i].Bit)
		}
	}
	if _, ok := nl.Net("w"); ok {
		t.Fatalf("bus wire must not produce a scalar net")
	}
}

func TestScalarWireIdentity(t *testing.T) {
	nl := mustBuild(t, "wire w; wire [0:0] v;")
	if len(nl.Nets) != 2 {
		t.Fatalf("expected 2 nets, got %d", len(nl.Nets))
	}
	for _, name := range []string{"w", "v"} {
		net, ok := nl.Net(name)
		if !ok {
			t.Fatalf("expected net %s", name)
		}
		if net.Bit != -1 {
			t.Fatalf("expected scalar net %s, got bit %d", name, net.Bit)
		}
	}
}

func TestPinResolution(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want []string
	}{
		{"whole_bus", "w", []string{"w[0]", "w[1]", "w[2]", "w[3]"}},
		{"range", "w[2:0]", []string{"w[0]", "w[1]", "w[2]"}},
		{"single_bit", "w[3]", []string{"w[3]"}},
		{"degenerate_range", "w[1:1]", []string{"w[1]"}},
		{"scalar", "s", []string{"s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nl := mustBuild(t, "wire [3:0] w; wire s; buf b(" + tt.ref + ");")
			p := nl.Gates[0].Pins[0]
			got := netNames(nl, p)
			if p.Width() != len(tt.want) {
				t.Fatalf("expected width %d, got %d", len(tt.want), p.Width())
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("expected nets %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWireTableKeepsDeclarationOrder(t *testing.T) {
	wires, _ := declarations(t, "wire [2:0] c; wire a, b;")
	wt, err := NewWireTable(wires)
	if err != nil {
		t.Fatalf("NewWireTable: %v", err)
	}
	if wt.Len() != 3 {
		t.Fatalf("expected 3 wires, got %d", wt.Len())
	}
	names := wt.Names()
	if strings.Join(names, ",") != "c,a,b" {
		t.Fatalf("unexpected wire order %v", names)
	}
	if w, ok := wt.Width("c"); !ok || w != 3 {
		t.Fatalf("expected width 3 for c, got %d (%v)", w, ok)
	}
}

func TestDuplicateWireRejected(t *testing.T) {
	_, err := build(t, "wire a;\nwire a;")
	var symErr *SymbolError
	if !errors.As(err, &symErr) {
		t.Fatalf("expected *SymbolError, got %v", err)
	}
	if symErr.Name != "a" || symErr.Line != 2 || symErr.PrevLine != 1 {
		t.Fatalf("unexpected symbol error: %+v", symErr)
	}
	if !strings.Contains(err.Error(), "already defined") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestResolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"undeclared", "wire a; and g(a, b);", "not declared"},
		{"bit_out_of_range", "wire [3:0] w; buf b(w[9]);", "out of range"},
		{"range_out_of_range", "wire [3:0] w; buf b(w[4:0]);", "out of range"},
		{"lsb_above_msb", "wire [3:0] w; buf b(w[0:2]);", "lsb above msb"},
		{"index_scalar", "wire s; buf b(s[0]);", "not a bus"},
		{"range_scalar", "wire s; buf b(s[0:0]);", "not a bus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nl, err := build(t, tt.src)
			if nl != nil {
				t.Fatalf("expected no netlist on error")
			}
			var resErr *ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("expected *ResolutionError, got %v", err)
			}
			if !strings.Contains(resErr.Msg, tt.msg) {
				t.Fatalf("expected %q in %q", tt.msg, resErr.Msg)
			}
		})
	}
}

func TestResolutionErrorContext(t *testing.T) {
	_, err := build(t, "wire a;\nand g1(a,\n  missing);")
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %v", err)
	}
	if resErr.Gate != "and g1" || resErr.Pin != 1 || resErr.Ref != "missing" || resErr.Line != 3 {
		t.Fatalf("unexpected context: %+v", resErr)
	}
}

func TestBidirectionalConsistency(t *testing.T) {
	nl := mustBuild(t, `wire a, b, [3:0] d;
wire [1:0] q;
and g1(a, b, d[0]);
or g2(d[3:1], a, q);
not(q[1], d);`)

	for ni, net := range nl.Nets {
		for _, k := range net.Pins {
			p := nl.Pin(k)
			count := 0
			for _, pn := range p.Nets {
				if pn == ni {
					count++
				}
			}
			if count != 1 {
				t.Fatalf("net %s listed %d times on gate %d pin %d", net.Name, count, k.Gate, k.Pin)
			}
		}
	}
	for gi, g := range nl.Gates {
		for pi, p := range g.Pins {
			if p.Gate != gi || p.Index != pi {
				t.Fatalf("pin key mismatch: %d/%d vs %d/%d", p.Gate, p.Index, gi, pi)
			}
			for _, ni := range p.Nets {
				count := 0
				for _, k := range nl.Nets[ni].Pins {
					if k == (PinKey{Gate: gi, Pin: pi}) {
						count++
					}
				}
				if count != 1 {
					t.Fatalf("pin %d of gate %d listed %d times on net %s", pi, gi, count, nl.Nets[ni].Name)
				}
			}
		}
	}
}

func TestPinIndexStability(t *testing.T) {
	nl := mustBuild(t, "wire a, b, c, d, e; xor x(a, b, c, d, e);")
	g := nl.Gates[0]
	for k, name := range []string{"a", "b", "c", "d", "e"} {
		if g.Pins[k].Index != k || g.Pins[k].Ref.Name != name {
			t.Fatalf("pin %d: expected %s, got %+v", k, name, g.Pins[k])
		}
	}
}

const exampleModule = `module m;
wire a, b;
wire [1:0] c;
and g1(a, b, c);
endmodule`

func TestEndToEndExample(t *testing.T) {
	nl := mustBuild(t, exampleModule)

	fanout := map[string]int{"a": 1, "b": 1, "c[0]": 1, "c[1]": 1}
	if len(nl.Nets) != len(fanout) {
		t.Fatalf("expected %d nets, got %d", len(fanout), len(nl.Nets))
	}
	for name, want := range fanout {
		net, ok := nl.Net(name)
		if !ok {
			t.Fatalf("missing net %s", name)
		}
		if net.Fanout() != want {
			t.Fatalf("net %s: expected fanout %d, got %d", name, want, net.Fanout())
		}
	}

	if len(nl.Gates) != 1 {
		t.Fatalf("expected 1 gate, got %d", len(nl.Gates))
	}
	g := nl.Gates[0]
	if g.Label() != "and g1" || len(g.Pins) != 3 {
		t.Fatalf("unexpected gate: %s with %d pins", g.Label(), len(g.Pins))
	}
	want := [][]string{{"a"}, {"b"}, {"c[0]", "c[1]"}}
	for i, nets := range want {
		got := netNames(nl, g.Pins[i])
		if strings.Join(got, ",") != strings.Join(nets, ",") {
			t.Fatalf("pin %d: expected %v, got %v", i, nets, got)
		}
	}
}

func TestDisplay(t *testing.T) {
	nl := mustBuild(t, exampleModule)
	var buf bytes.Buffer
	if err := nl.Display(&buf); err != nil {
		t.Fatalf("Display: %v", err)
	}

	want := `nets 4
  net a 1
    and g1 0
  net b 1
    and g1 1
  net c[0] 1
    and g1 2
  net c[1] 1
    and g1 2
components 1
  component and g1 3
    pin 1 a
    pin 1 b
    pin 2 c[0] c[1]
`
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestDisplayUnnamedGateAndFloatingNet(t *testing.T) {
	nl := mustBuild(t, "wire a, y, unused; not(y, a);")
	var buf bytes.Buffer
	if err := nl.Display(&buf); err != nil {
		t.Fatalf("Display: %v", err)
	}
	out := buf.String()
	for _, line := range []string{"  net unused 0\n", "  component not 2\n", "    not 0\n"} {
		if !strings.Contains(out, line) {
			t.Fatalf("expected %q in:\n%s", line, out)
		}
	}
}
