package facts

import "sort"

// FilterTablesByFiles returns a new Tables object containing only rows whose file
// or path is present in the provided file set.
func FilterTablesByFiles(tables Tables, files map[string]bool) Tables {
	if len(files) == 0 {
		return emptyTables()
	}
	out := emptyTables()

	out.Files = filterRows(tables.Files, files, func(r FileRow) string { return r.Path })
	out.Modules = filterRows(tables.Modules, files, func(r ModuleRow) string { return r.File })
	out.Wires = filterRows(tables.Wires, files, func(r WireRow) string { return r.File })
	out.Nets = filterRows(tables.Nets, files, func(r NetRow) string { return r.File })
	out.Gates = filterRows(tables.Gates, files, func(r GateRow) string { return r.File })
	out.Pins = filterRows(tables.Pins, files, func(r PinRow) string { return r.File })
	out.Connections = filterRows(tables.Connections, files, func(r ConnectionRow) string { return r.File })

	return out
}

// FilterDeltaByFiles returns a new Delta containing only rows for the specified files.
func FilterDeltaByFiles(delta Delta, files map[string]bool) Delta {
	if len(files) == 0 {
		return Delta{
			Added:   emptyTables(),
			Removed: emptyTables(),
		}
	}
	return Delta{
		Added:   FilterTablesByFiles(delta.Added, files),
		Removed: FilterTablesByFiles(delta.Removed, files),
	}
}

func filterRows[T any](rows []T, files map[string]bool, file func(T) string) []T {
	out := []T{}
	for _, row := range rows {
		if files[file(row)] {
			out = append(out, row)
		}
	}
	return out
}

// MergeTables concatenates the rows of every part, typically per-file tables
// taken apart with FilterTablesByFiles. File rows come back sorted by path.
func MergeTables(parts ...Tables) Tables {
	out := emptyTables()
	for _, p := range parts {
		out.Files = append(out.Files, p.Files...)
		out.Modules = append(out.Modules, p.Modules...)
		out.Wires = append(out.Wires, p.Wires...)
		out.Nets = append(out.Nets, p.Nets...)
		out.Gates = append(out.Gates, p.Gates...)
		out.Pins = append(out.Pins, p.Pins...)
		out.Connections = append(out.Connections, p.Connections...)
	}
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })
	return out
}
