// Package jobstore persists the job table and the idempotency ledger.
//
// The job table (jobs.json) is rewritten via temp-file-then-rename on every
// mutation, so a crash mid-write never yields a partially-written table. The
// idempotency ledger (idempo.jsonl) is append-only and loaded into a map at
// startup for O(1) lookup; a key, once bound, always resolves to the same
// job id.
package jobstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tessellated/drover/internal/fsops"
)

const (
	jobsFile   = "jobs.json"
	idempoFile = "idempo.jsonl"
)

// Store holds jobs and idempotency bindings under one state directory.
//
// One coarse mutex guards the in-memory maps and the persist step. It is
// held only for the fast in-memory-update-plus-persist path, never across
// job filesystem work, so concurrent readers see eventually consistent
// progress counters without ever seeing a corrupt table.
type Store struct {
	mu   sync.Mutex
	dir  string
	jobs map[string]*Job
	keys map[string]string // idempotency key -> job id
}

// idempoRecord is one line of the append-only ledger.
type idempoRecord struct {
	Key   string `json:"key"`
	JobID string `json:"job_id"`
}

// Open loads (or initializes) the store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &Store{
		dir:  dir,
		jobs: make(map[string]*Job),
		keys: make(map[string]string),
	}
	if err := s.loadJobs(); err != nil {
		return nil, err
	}
	if err := s.loadKeys(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Create persists a new job record. The job id must be unused.
func (s *Store) Create(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	j := job.clone()
	s.jobs[job.ID] = &j
	return s.persistJobsLocked()
}

// Update applies fn to the job under the store lock and atomically persists
// the whole table. This is the only mutation path for job state.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	fn(j)
	return s.persistJobsLocked()
}

// Get returns a copy of a job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// List returns copies of all jobs, most recently started first.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].ID > out[k].ID
		}
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	return out
}

// LookupKey resolves an idempotency key to its bound job id.
func (s *Store) LookupKey(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[key]
	return id, ok
}

// BindKeys appends key -> jobID bindings to the ledger. Binding an
// already-bound key to a different job is refused; re-binding to the same
// job is a no-op (keys are bind-once by construction).
func (s *Store) BindKeys(keys []string, jobID string) error {
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, idempoFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open idempotency ledger: %w", err)
	}
	defer f.Close()

	for _, key := range keys {
		if bound, ok := s.keys[key]; ok {
			if bound == jobID {
				continue
			}
			return fmt.Errorf("idempotency key already bound to job %s", bound)
		}
		data, err := json.Marshal(idempoRecord{Key: key, JobID: jobID})
		if err != nil {
			return fmt.Errorf("encode idempotency record: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("append idempotency record: %w", err)
		}
		s.keys[key] = jobID
	}
	return f.Sync()
}

// persistJobsLocked rewrites jobs.json atomically. Caller holds s.mu.
func (s *Store) persistJobsLocked() error {
	table := make(map[string]*Job, len(s.jobs))
	for id, j := range s.jobs {
		table[id] = j
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job table: %w", err)
	}
	if err := fsops.WriteFileAtomic(filepath.Join(s.dir, jobsFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("persist job table: %w", err)
	}
	return nil
}

func (s *Store) loadJobs() error {
	path := filepath.Join(s.dir, jobsFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read job table: %w", err)
	}
	if err := json.Unmarshal(data, &s.jobs); err != nil {
		return fmt.Errorf("parse job table %q: %w", path, err)
	}
	return nil
}

func (s *Store) loadKeys() error {
	path := filepath.Join(s.dir, idempoFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open idempotency ledger: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec idempoRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("parse idempotency ledger line %d: %w", line, err)
		}
		s.keys[rec.Key] = rec.JobID
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan idempotency ledger: %w", err)
	}
	return nil
}
