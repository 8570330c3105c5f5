package facts

import "strconv"

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

// Empty reports whether the delta carries no rows at all.
func (d Delta) Empty() bool {
	return d.Added.rowCount() == 0 && d.Removed.rowCount() == 0
}

func (t Tables) rowCount() int {
	return len(t.Files) + len(t.Modules) + len(t.Wires) + len(t.Nets) +
		len(t.Gates) + len(t.Pins) + len(t.Connections)
}

func diffTables(from, to Tables) Tables {
	out := emptyTables()

	out.Files = diffRows(from.Files, to.Files, func(r FileRow) string {
		return r.Path + "|" + r.Module + "|" + intKey(r.Tokens) + "|" + intKey(r.Statements) + "|" + boolKey(r.Closed)
	})
	out.Modules = diffRows(from.Modules, to.Modules, func(r ModuleRow) string {
		return r.Name + "|" + r.File + "|" + intKey(r.Line)
	})
	out.Wires = diffRows(from.Wires, to.Wires, func(r WireRow) string {
		return r.Module + "|" + r.Name + "|" + intKey(r.Width) + "|" + r.File + "|" + intKey(r.Line)
	})
	out.Nets = diffRows(from.Nets, to.Nets, func(r NetRow) string {
		return r.Module + "|" + r.Name + "|" + r.Wire + "|" + intKey(r.Bit) + "|" + intKey(r.Fanout) + "|" + r.File + "|" + intKey(r.Line)
	})
	out.Gates = diffRows(from.Gates, to.Gates, func(r GateRow) string {
		return r.Module + "|" + intKey(r.Index) + "|" + r.Type + "|" + r.Instance + "|" + intKey(r.Pins) + "|" + r.File + "|" + intKey(r.Line)
	})
	out.Pins = diffRows(from.Pins, to.Pins, func(r PinRow) string {
		return r.Module + "|" + intKey(r.Gate) + "|" + intKey(r.Index) + "|" + r.Ref + "|" + intKey(r.Width) + "|" + r.File + "|" + intKey(r.Line)
	})
	out.Connections = diffRows(from.Connections, to.Connections, func(r ConnectionRow) string {
		return r.Module + "|" + r.Net + "|" + intKey(r.Gate) + "|" + intKey(r.Pin) + "|" + r.File
	})

	return out
}

func emptyTables() Tables {
	return Tables{
		Files:       []FileRow{},
		Modules:     []ModuleRow{},
		Wires:       []WireRow{},
		Nets:        []NetRow{},
		Gates:       []GateRow{},
		Pins:        []PinRow{},
		Connections: []ConnectionRow{},
	}
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]T, len(from))
	for _, row := range from {
		fromSet[key(row)] = row
	}
	var diff []T
	for _, row := range to {
		rowKey := key(row)
		if _, ok := fromSet[rowKey]; !ok {
			diff = append(diff, row)
		}
	}
	if diff == nil {
		diff = []T{}
	}
	return diff
}

func boolKey(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func intKey(v int) string {
	return strconv.Itoa(v)
}
