// Package journal writes the per-job step journal: one append-only
// newline-delimited JSON file per job, recording what was attempted and done
// in enough detail to reconstruct a run without re-deriving it from job
// state.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry types. Every job writes one prepare, zero or more step entries,
// at most one error, and exactly one finalize.
const (
	TypePrepare  = "prepare"
	TypeStep     = "step"
	TypeError    = "error"
	TypeFinalize = "finalize"
)

// Entry is one journal record. Field presence depends on Type; everything
// optional is omitempty so journals stay greppable.
type Entry struct {
	TS   time.Time `json:"ts"`
	Type string    `json:"type"`

	// prepare
	JobID   string `json:"job_id,omitempty"`
	Label   string `json:"label,omitempty"`
	Batches int    `json:"batches,omitempty"`
	Items   int    `json:"items,omitempty"`

	// step
	Batch int    `json:"batch,omitempty"`
	Op    string `json:"op,omitempty"`
	Src   string `json:"src,omitempty"`
	Dest  string `json:"dest,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Note  string `json:"note,omitempty"`

	// error / finalize
	Error  string `json:"error,omitempty"`
	Status string `json:"status,omitempty"`
}

// Writer appends entries for one job. Not safe for concurrent use; each job
// is journaled from its single worker goroutine.
type Writer struct {
	f    *os.File
	path string
}

// Open creates (or reopens for append) the journal file for a job under dir.
func Open(dir, jobID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	path := filepath.Join(dir, jobID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the journal file path, recorded on the job for operators.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one entry followed by a newline and flushes it to disk.
// Each entry is durable before the corresponding mutation is reported done.
func (w *Writer) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Read loads all entries from a journal file, in order.
// Used by tests and by operators inspecting a job after the fact.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parse journal line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan journal %q: %w", path, err)
	}
	return entries, nil
}
