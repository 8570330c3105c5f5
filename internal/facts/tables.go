package facts

import (
	"sort"

	"github.com/robert-at-pretension-io/evlc/internal/compiler"
)

// Tables is the relational fact model of compiled designs.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Files       []FileRow       `json:"files"`
	Modules     []ModuleRow     `json:"modules"`
	Wires       []WireRow       `json:"wires"`
	Nets        []NetRow        `json:"nets"`
	Gates       []GateRow       `json:"gates"`
	Pins        []PinRow        `json:"pins"`
	Connections []ConnectionRow `json:"connections"`
}

type FileRow struct {
	Path       string `json:"path"`
	Module     string `json:"module"`
	Tokens     int    `json:"tokens"`
	Statements int    `json:"statements"`
	Closed     bool   `json:"closed"`
}

type ModuleRow struct {
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
}

type WireRow struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

// NetRow is one scalar net; Bit is -1 for a scalar wire. Line is the line
// of the wire declaration.
type NetRow struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Wire   string `json:"wire"`
	Bit    int    `json:"bit"`
	Fanout int    `json:"fanout"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

type GateRow struct {
	Module   string `json:"module"`
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Instance string `json:"instance"`
	Pins     int    `json:"pins"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// PinRow is one gate pin. Width is 0 when the netlist was not built.
type PinRow struct {
	Module string `json:"module"`
	Gate   int    `json:"gate"`
	Index  int    `json:"index"`
	Ref    string `json:"ref"`
	Width  int    `json:"width"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

// ConnectionRow attaches a gate pin to one net
type ConnectionRow struct {
	Module string `json:"module"`
	Net    string `json:"net"`
	Gate   int    `json:"gate"`
	Pin    int    `json:"pin"`
	File   string `json:"file"`
}

// BuildTables flattens designs into relational tables.
func BuildTables(designs []*compiler.Design) Tables {
	tables := emptyTables()

	seenFiles := make(map[string]bool)
	for _, d := range designs {
		if d == nil || seenFiles[d.Path] {
			continue
		}
		seenFiles[d.Path] = true
		module := d.Module.Name

		tables.Files = append(tables.Files, FileRow{
			Path:       d.Path,
			Module:     module,
			Tokens:     len(d.Tokens),
			Statements: len(d.Statements),
			Closed:     d.Closed,
		})

		tables.Modules = append(tables.Modules, ModuleRow{
			Name: module,
			File: d.Path,
			Line: d.Module.Line,
		})

		wireLines := make(map[string]int, len(d.Wires))
		for _, w := range d.Wires {
			wireLines[w.Name] = w.Line
			tables.Wires = append(tables.Wires, WireRow{
				Module: module,
				Name:   w.Name,
				Width:  w.Width,
				File:   d.Path,
				Line:   w.Line,
			})
		}

		for gi, c := range d.Components {
			tables.Gates = append(tables.Gates, GateRow{
				Module:   module,
				Index:    gi,
				Type:     c.Type,
				Instance: c.Instance,
				Pins:     len(c.Pins),
				File:     d.Path,
				Line:     c.Line,
			})
			for pi, ref := range c.Pins {
				width := 0
				if d.Netlist != nil {
					width = d.Netlist.Gates[gi].Pins[pi].Width()
				}
				tables.Pins = append(tables.Pins, PinRow{
					Module: module,
					Gate:   gi,
					Index:  pi,
					Ref:    ref.String(),
					Width:  width,
					File:   d.Path,
					Line:   ref.Line,
				})
			}
		}

		if d.Netlist == nil {
			continue
		}
		for _, net := range d.Netlist.Nets {
			tables.Nets = append(tables.Nets, NetRow{
				Module: module,
				Name:   net.Name,
				Wire:   net.Wire,
				Bit:    net.Bit,
				Fanout: net.Fanout(),
				File:   d.Path,
				Line:   wireLines[net.Wire],
			})
			for _, k := range net.Pins {
				tables.Connections = append(tables.Connections, ConnectionRow{
					Module: module,
					Net:    net.Name,
					Gate:   k.Gate,
					Pin:    k.Pin,
					File:   d.Path,
				})
			}
		}
	}

	sort.Slice(tables.Files, func(i, j int) bool { return tables.Files[i].Path < tables.Files[j].Path })

	return tables
}

// Paths returns every file path in the tables, sorted.
func (t Tables) Paths() []string {
	files := make([]string, 0, len(t.Files))
	for _, f := range t.Files {
		files = append(files, f.Path)
	}
	sort.Strings(files)
	return files
}
