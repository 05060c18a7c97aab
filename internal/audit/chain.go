// Package audit maintains the global append-only, hash-linked log of job
// outcomes.
//
// Every entry embeds prev_hash (the hash of the immediately preceding entry)
// and its own hash, computed over the entry with the hash field excluded.
// This is a tamper-evidence chain, not a signature scheme: an auditor who
// recomputes the chain from the first entry detects any entry altered or
// removed after the fact.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// hashDomain prefixes every hash computation. The null-byte separator
// prevents domain/data boundary ambiguity; the version suffix enables future
// algorithm migration.
const hashDomain = "drover/audit/v1"

// Entry is one audit record: the summary of one finished job.
type Entry struct {
	JobID      string   `json:"job_id"`
	Status     string   `json:"status"`
	FinishedAt string   `json:"finished_at"` // RFC 3339, UTC
	BatchRefs  []string `json:"batch_refs"`
	Errors     []string `json:"errors"`
	Label      string   `json:"label,omitempty"`
	PrevHash   string   `json:"prev_hash"`
	Hash       string   `json:"hash"`
}

// hashableMap renders the entry minus the hash field for hashing.
// prev_hash IS included: that is what links the chain.
func (e Entry) hashableMap() map[string]any {
	m := map[string]any{
		"job_id":      e.JobID,
		"status":      e.Status,
		"finished_at": e.FinishedAt,
		"batch_refs":  e.BatchRefs,
		"errors":      e.Errors,
		"prev_hash":   e.PrevHash,
	}
	if e.Label != "" {
		m["label"] = e.Label
	}
	return m
}

// computeHash hashes an entry with domain separation:
// SHA256(domain + 0x00 + canonical JSON of entry minus hash).
func computeHash(e Entry) (string, error) {
	if e.BatchRefs == nil {
		e.BatchRefs = []string{}
	}
	if e.Errors == nil {
		e.Errors = []string{}
	}
	canonical, err := marshalCanonical(e.hashableMap())
	if err != nil {
		return "", fmt.Errorf("canonicalize audit entry: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Chain appends to the global audit log. One Chain instance owns the file;
// appends are serialized by an internal mutex.
type Chain struct {
	mu       sync.Mutex
	path     string
	lastHash string // hash of the final entry on disk, "" for a fresh log
}

// Open attaches to the audit log at path, creating it lazily on first
// append. The existing chain is verified on open so corruption is surfaced
// at startup rather than on the next append.
func Open(path string) (*Chain, error) {
	entries, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := verifyEntries(entries); err != nil {
		return nil, fmt.Errorf("audit log %q failed verification: %w", path, err)
	}
	c := &Chain{path: path}
	if len(entries) > 0 {
		c.lastHash = entries[len(entries)-1].Hash
	}
	return c, nil
}

// Path returns the audit log location.
func (c *Chain) Path() string {
	return c.path
}

// Append links e to the chain, computes its hash, and writes it durably.
// The caller's PrevHash and Hash fields are overwritten.
func (c *Chain) Append(e Entry) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.BatchRefs == nil {
		e.BatchRefs = []string{}
	}
	if e.Errors == nil {
		e.Errors = []string{}
	}
	e.PrevHash = c.lastHash
	hash, err := computeHash(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hash

	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("encode audit entry: %w", err)
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("open audit log %q: %w", c.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Entry{}, fmt.Errorf("sync audit log: %w", err)
	}

	c.lastHash = e.Hash
	return e, nil
}

// Read loads all entries from an audit log. A missing file is an empty,
// valid chain.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log %q: %w", path, err)
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
			return nil, fmt.Errorf("parse audit line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log %q: %w", path, err)
	}
	return entries, nil
}

// Verify recomputes the full chain at path and returns the first defect.
func Verify(path string) error {
	entries, err := Read(path)
	if err != nil {
		return err
	}
	return verifyEntries(entries)
}

func verifyEntries(entries []Entry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("entry %d: prev_hash mismatch (chain broken or entry removed)", i)
		}
		recomputed, err := computeHash(e)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if recomputed != e.Hash {
			return fmt.Errorf("entry %d: stored hash does not match recomputed hash (entry altered)", i)
		}
		prev = e.Hash
	}
	return nil
}
