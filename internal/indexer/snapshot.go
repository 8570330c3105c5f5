package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/robert-at-pretension-io/evlc/internal/facts"
)

const (
	snapshotVersion  = 2
	snapshotFileName = "fact_snapshot.json"
)

// factSnapshot holds the fact tables of the last successful build of each
// source, keyed by path. A run only compares and replaces the sources it
// resolved, so compiling one file of a tree leaves the rest of the snapshot
// alone.
type factSnapshot struct {
	Version int                     `json:"version"`
	Files   map[string]facts.Tables `json:"files"`
}

func newFactSnapshot() *factSnapshot {
	return &factSnapshot{Version: snapshotVersion, Files: make(map[string]facts.Tables)}
}

// loadFactSnapshot reads the snapshot in dir. A missing snapshot, or one
// written in another format version, is reported as absent.
func loadFactSnapshot(dir string) (*factSnapshot, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, snapshotFileName))
	if os.IsNotExist(err) {
		return newFactSnapshot(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read fact snapshot: %w", err)
	}

	var snap factSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("parse fact snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return newFactSnapshot(), false, nil
	}
	if snap.Files == nil {
		snap.Files = make(map[string]facts.Tables)
	}
	return &snap, true, nil
}

// Tables merges the recorded tables of the given sources. Sources without
// an entry contribute nothing.
func (s *factSnapshot) Tables(sources []string) facts.Tables {
	parts := make([]facts.Tables, 0, len(sources))
	for _, src := range sortedCopy(sources) {
		if t, ok := s.Files[src]; ok {
			parts = append(parts, t)
		}
	}
	return facts.MergeTables(parts...)
}

// Update replaces the entries of sources with their rows in current. A
// source with no rows in current (it failed to build) loses its entry.
func (s *factSnapshot) Update(sources []string, current facts.Tables) {
	built := make(map[string]bool, len(current.Files))
	for _, p := range current.Paths() {
		built[p] = true
	}
	for _, src := range sources {
		if !built[src] {
			delete(s.Files, src)
			continue
		}
		s.Files[src] = facts.FilterTablesByFiles(current, map[string]bool{src: true})
	}
}

// Save writes the snapshot into dir, replacing any previous one in a single
// rename.
func (s *factSnapshot) Save(dir string) error {
	s.Version = snapshotVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fact snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := replaceFile(filepath.Join(dir, snapshotFileName), data); err != nil {
		return fmt.Errorf("write fact snapshot: %w", err)
	}
	return nil
}

// replaceFile writes data to a temporary file next to path and renames it
// over path. Readers see either the old or the new contents.
func replaceFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
