package netlist

import (
	"bufio"
	"fmt"
	"io"
)

// Display writes the nets section followed by the components section.
// Nets and gates appear in creation order, pins in attachment order.
func (n *Netlist) Display(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "nets %d\n", len(n.Nets))
	for _, net := range n.Nets {
		fmt.Fprintf(bw, "  net %s %d\n", net.Name, net.Fanout())
		for _, k := range net.Pins {
			fmt.Fprintf(bw, "    %s %d\n", n.Gates[k.Gate].Label(), k.Pin)
		}
	}

	fmt.Fprintf(bw, "components %d\n", len(n.Gates))
	for _, g := range n.Gates {
		fmt.Fprintf(bw, "  component %s %d\n", g.Label(), len(g.Pins))
		for _, p := range g.Pins {
			fmt.Fprintf(bw, "    pin %d", p.Width())
			for _, ni := range p.Nets {
				fmt.Fprintf(bw, " %s", n.Nets[ni].Name)
			}
			bw.WriteString("\n")
		}
	}

	return bw.Flush()
}
