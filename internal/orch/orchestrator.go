package orch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessellated/drover/internal/audit"
	"github.com/tessellated/drover/internal/bundle"
	"github.com/tessellated/drover/internal/fsops"
	"github.com/tessellated/drover/internal/jobstore"
	"github.com/tessellated/drover/internal/journal"
)

// Clock supplies timestamps for job records, journal entries, and audit
// entries. Injected so tests run against a deterministic clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Defaults applied when Params leave a knob zero.
const (
	DefaultWorkers        = 2
	DefaultBatchItemLimit = 500
)

// Params are the injected dependencies and limits for an Orchestrator.
type Params struct {
	// Roots are the allow-listed directories; at least one, absolute.
	Roots []string
	// StateDir holds the job table, ledgers, journals, and scratch space.
	StateDir string
	// Workers bounds concurrent job execution. Default 2.
	Workers int
	// BatchItemLimit is the per-batch item cap enforced by preview.
	// Default 500.
	BatchItemLimit int
	// BundleLimits are the size/time guards passed to the bundle builder.
	BundleLimits bundle.Limits
}

// Option configures an Orchestrator beyond its Params.
type Option func(*Orchestrator)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// Orchestrator is the batch engine instance. Construct with New and share
// by reference; all state lives on the instance.
type Orchestrator struct {
	scope          *fsops.Scope
	exec           *fsops.Executor
	store          *jobstore.Store
	chain          *audit.Chain
	clock          Clock
	batchItemLimit int
	bundleLimits   bundle.Limits
	journalDir     string
	scratchDir     string

	// sem bounds concurrent job runs; wg tracks them for Wait.
	sem chan struct{}
	wg  sync.WaitGroup
}

// New builds an Orchestrator, loading persisted jobs, idempotency bindings,
// and the audit chain from the state directory.
func New(p Params, opts ...Option) (*Orchestrator, error) {
	scope, err := fsops.NewScope(p.Roots)
	if err != nil {
		return nil, fmt.Errorf("configure scope: %w", err)
	}
	store, err := jobstore.Open(p.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	chain, err := audit.Open(filepath.Join(p.StateDir, "audit.log"))
	if err != nil {
		return nil, fmt.Errorf("open audit chain: %w", err)
	}

	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	limit := p.BatchItemLimit
	if limit <= 0 {
		limit = DefaultBatchItemLimit
	}

	o := &Orchestrator{
		scope:          scope,
		exec:           fsops.NewExecutor(scope),
		store:          store,
		chain:          chain,
		clock:          realClock{},
		batchItemLimit: limit,
		bundleLimits:   p.BundleLimits,
		journalDir:     filepath.Join(p.StateDir, "journal"),
		scratchDir:     filepath.Join(p.StateDir, "scratch"),
		sem:            make(chan struct{}, workers),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// GetJob returns a job by id.
func (o *Orchestrator) GetJob(id string) (jobstore.Job, bool) {
	return o.store.Get(id)
}

// ListJobs returns all jobs, most recently started first.
func (o *Orchestrator) ListJobs() []jobstore.Job {
	return o.store.List()
}

// AuditPath returns the location of the global audit chain.
func (o *Orchestrator) AuditPath() string {
	return o.chain.Path()
}

// Wait blocks until all background job runs have finished. Used by tests
// and by CLI callers that want synchronous completion.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Execute accepts a submission for asynchronous execution.
//
// Idempotency is checked first: if any present key is already bound, the
// bound job is returned without re-running preview or touching disk; keys
// bound to different jobs are a conflict. Otherwise preview runs
// synchronously in the caller's goroutine (this can take noticeable time
// for large batches), a job is created and persisted in running state, all
// keys are bound, and the mutating work is handed to the worker pool. The
// returned job id is valid for polling immediately.
func (o *Orchestrator) Execute(batches []Batch, label string) (*ExecuteResult, error) {
	keys := idempotencyKeys(batches)
	if existing, err := o.resolveExisting(keys); err != nil {
		return nil, err
	} else if existing != "" {
		slog.Info("duplicate submission", "job_id", existing)
		return &ExecuteResult{JobID: existing, Accepted: false, Duplicate: true}, nil
	}

	prev, err := o.Preview(batches)
	if err != nil {
		return nil, err
	}

	jobID := "job_" + uuid.NewString()
	jw, err := journal.Open(o.journalDir, jobID)
	if err != nil {
		return nil, fmt.Errorf("open journal for %s: %w", jobID, err)
	}

	job := jobstore.Job{
		ID:          jobID,
		Status:      jobstore.StatusRunning,
		Progress:    jobstore.Progress{Done: 0, Total: prev.Summary.Total},
		Errors:      []string{},
		StartedAt:   o.clock.Now().UTC(),
		Label:       label,
		JournalPath: jw.Path(),
		Rollback:    []jobstore.RollbackStep{},
	}
	if err := o.store.Create(job); err != nil {
		jw.Close()
		return nil, err
	}
	if err := o.store.BindKeys(keys, jobID); err != nil {
		jw.Close()
		return nil, err
	}

	slog.Info("job accepted",
		"job_id", jobID,
		"label", label,
		"batches", len(batches),
		"items", prev.Summary.Total,
		"ok", prev.Summary.OK,
	)

	o.wg.Add(1)
	go o.run(jobID, label, batches, prev, jw)

	return &ExecuteResult{JobID: jobID, Accepted: true}, nil
}

// resolveExisting maps the submission's idempotency keys onto existing
// jobs. Returns the bound job id, or a conflict error when keys diverge.
func (o *Orchestrator) resolveExisting(keys []string) (string, error) {
	existing := ""
	for _, key := range keys {
		id, ok := o.store.LookupKey(key)
		if !ok {
			continue
		}
		if existing != "" && existing != id {
			return "", &ValidationError{
				Code:    CodeIdempotencyConflict,
				Message: fmt.Sprintf("keys map to different jobs (%s, %s)", existing, id),
			}
		}
		existing = id
	}
	return existing, nil
}

func idempotencyKeys(batches []Batch) []string {
	var keys []string
	for _, b := range batches {
		if b.IdempotencyKey != "" {
			keys = append(keys, b.IdempotencyKey)
		}
	}
	return keys
}
