package indexer

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// timingEvent is one JSONL record. Times are milliseconds since the run
// started.
type timingEvent struct {
	Phase      string  `json:"phase"`
	Kind       string  `json:"kind"`
	File       string  `json:"file,omitempty"`
	Status     string  `json:"status,omitempty"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
	EndMS      float64 `json:"end_ms"`
}

// timingRecorder streams timing events to a JSONL file. Compile workers
// record concurrently. A recorder without a file drops everything.
type timingRecorder struct {
	origin time.Time
	err    error

	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

func newTimingRecorder(origin time.Time, path string) *timingRecorder {
	tr := &timingRecorder{origin: origin}
	if path == "" {
		return tr
	}
	f, err := os.Create(path)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.f = f
	tr.buf = bufio.NewWriter(f)
	tr.enc = json.NewEncoder(tr.buf)
	return tr
}

func (tr *timingRecorder) Enabled() bool {
	if tr == nil {
		return false
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.f != nil
}

// Err is the error that kept the recorder from opening its file.
func (tr *timingRecorder) Err() error {
	if tr == nil {
		return nil
	}
	return tr.err
}

// Close flushes and closes the file. It is safe to call more than once.
func (tr *timingRecorder) Close() error {
	if tr == nil {
		return nil
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.f == nil {
		return nil
	}
	err := tr.buf.Flush()
	if cerr := tr.f.Close(); err == nil {
		err = cerr
	}
	tr.f, tr.buf, tr.enc = nil, nil, nil
	return err
}

func (tr *timingRecorder) RecordStage(phase string, start time.Time, d time.Duration, status string) {
	tr.emit(timingEvent{Phase: phase, Kind: "stage", Status: status}, start, d)
}

func (tr *timingRecorder) RecordFile(phase, file, status string, start time.Time, d time.Duration) {
	tr.emit(timingEvent{Phase: phase, Kind: "file", File: file, Status: status}, start, d)
}

func (tr *timingRecorder) emit(ev timingEvent, start time.Time, d time.Duration) {
	if tr == nil {
		return
	}
	ev.StartMS = millis(start.Sub(tr.origin))
	ev.DurationMS = millis(d)
	ev.EndMS = ev.StartMS + ev.DurationMS

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.enc == nil {
		return
	}
	_ = tr.enc.Encode(ev)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// resolveTimingPath picks the JSONL destination. EVLC_TIMING_JSONL wins over
// the Timing fields; EVLC_TIMING alone writes timing.jsonl next to the sources.
func (idx *Indexer) resolveTimingPath(rootPath string) string {
	if idx == nil {
		return ""
	}
	if envPath := os.Getenv("EVLC_TIMING_JSONL"); envPath != "" {
		return envPath
	}
	if idx.Timing && idx.TimingPath != "" {
		return idx.TimingPath
	}
	if idx.Timing || envBool("EVLC_TIMING") {
		return filepath.Join(baseDir(rootPath), "timing.jsonl")
	}
	return ""
}

// baseDir is the directory a run is anchored at: rootPath itself, or the
// directory of a single-file root.
func baseDir(rootPath string) string {
	if rootPath == "" {
		return "."
	}
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		return filepath.Dir(rootPath)
	}
	return rootPath
}
