package orch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/tessellated/drover/internal/audit"
	"github.com/tessellated/drover/internal/bundle"
	"github.com/tessellated/drover/internal/jobstore"
	"github.com/tessellated/drover/internal/journal"
)

// run executes one job on a worker slot. It is the only code that mutates
// disk on behalf of a job, and the only writer of that job's journal.
//
// Failure model: the first error aborts the remaining batches (fail-fast at
// job granularity), records an error journal entry, and finalizes the job
// as failed. A panic from any backend is contained here so it can never
// take down the worker pool.
func (o *Orchestrator) run(jobID, label string, batches []Batch, prev *PreviewResult, jw *journal.Writer) {
	defer o.wg.Done()
	o.sem <- struct{}{}
	defer func() { <-o.sem }()
	defer jw.Close()

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic during job run: %v", r)
		}
		o.finalize(jobID, label, batches, jw, runErr)
	}()

	o.journalAppend(jw, journal.Entry{
		Type:    journal.TypePrepare,
		JobID:   jobID,
		Label:   label,
		Batches: len(batches),
		Items:   prev.Summary.Total,
	})

	var rollback []jobstore.RollbackStep
	for i, batch := range batches {
		results := prev.Batches[i].Results

		switch parseOp(batch.Op) {
		case opRenameMove:
			rollback, runErr = o.runRenameMove(jobID, i, batch, results, jw, rollback)
		case opBundleCreate:
			rollback, runErr = o.runBundle(jobID, i, batch, results, jw, rollback)
		case opUnsupported:
			// Every item was classified DENY; count them as processed.
			o.advanceProgress(jobID, len(results))
		}
		if runErr != nil {
			o.journalAppend(jw, journal.Entry{Type: journal.TypeError, Batch: i, Op: batch.Op, Error: runErr.Error()})
			break
		}
	}

	// Hand the accumulated descriptors to finalize via the job record.
	if err := o.store.Update(jobID, func(j *jobstore.Job) {
		j.Rollback = rollback
	}); err != nil && runErr == nil {
		runErr = err
	}
}

// runRenameMove executes the OK items of a rename/move batch in order.
// An item that vanished between preview and execute fails the whole job;
// skipping it silently would leave the classification and the journal
// disagreeing about what happened.
func (o *Orchestrator) runRenameMove(jobID string, batchIdx int, batch Batch, results []ItemResult, jw *journal.Writer, rollback []jobstore.RollbackStep) ([]jobstore.RollbackStep, error) {
	for _, res := range results {
		if res.Status != StatusOK {
			o.advanceProgress(jobID, 1)
			continue
		}
		oldPath, _ := res.Item.stringField("old_path")

		moved, err := o.exec.Move(oldPath, res.ResolvedPath)
		if err != nil {
			return rollback, fmt.Errorf("batch %d: %w", batchIdx, err)
		}

		entry := journal.Entry{
			Type:  journal.TypeStep,
			Batch: batchIdx,
			Op:    batch.Op,
			Src:   oldPath,
			Dest:  res.ResolvedPath,
		}
		if moved.CrossVolume {
			entry.Note = "cross-volume copy; source quarantined at " + moved.QuarantinePath
		}
		o.journalAppend(jw, entry)

		rollback = append(rollback, jobstore.RollbackStep{
			Op:   "move",
			Src:  res.ResolvedPath,
			Dest: oldPath,
		})
		o.advanceProgress(jobID, 1)
	}
	return rollback, nil
}

// runBundle executes a bundle.create batch: one build over all approved
// inputs against the batch's shared resolved target.
func (o *Orchestrator) runBundle(jobID string, batchIdx int, batch Batch, results []ItemResult, jw *journal.Writer, rollback []jobstore.RollbackStep) ([]jobstore.RollbackStep, error) {
	var (
		inputs []string
		target string
		okCnt  int
	)
	for _, res := range results {
		if res.Status != StatusOK {
			o.advanceProgress(jobID, 1)
			continue
		}
		src, _ := res.Item.sourcePath()
		inputs = append(inputs, src)
		target = res.ResolvedPath
		okCnt++
	}
	if okCnt == 0 {
		return rollback, nil
	}

	mode, err := bundle.ParseMode(batch.Mode)
	if err != nil {
		return rollback, fmt.Errorf("batch %d: %w", batchIdx, err)
	}

	builder := bundle.NewBuilder(filepath.Join(o.scratchDir, jobID), o.bundleLimits)
	manifest, err := builder.Build(inputs, mode, target)
	if err != nil {
		return rollback, fmt.Errorf("batch %d: %w", batchIdx, err)
	}

	o.journalAppend(jw, journal.Entry{
		Type:  journal.TypeStep,
		Batch: batchIdx,
		Op:    batch.Op,
		Dest:  target,
		Mode:  string(mode),
		Note:  fmt.Sprintf("bundled %d inputs, %d bytes, %d warnings", len(inputs), manifest.Bytes, len(manifest.Warnings)),
	})

	rollback = append(rollback, jobstore.RollbackStep{Op: "remove", Path: target})
	o.advanceProgress(jobID, okCnt)
	return rollback, nil
}

// advanceProgress bumps the persisted done counter. Each bump is its own
// locked update-plus-persist, so pollers may observe intermediate values
// but never a torn table.
func (o *Orchestrator) advanceProgress(jobID string, n int) {
	if n == 0 {
		return
	}
	if err := o.store.Update(jobID, func(j *jobstore.Job) {
		j.Progress.Done += n
	}); err != nil {
		slog.Error("progress update failed", "job_id", jobID, "error", err)
	}
}

// finalize persists the terminal job state and appends exactly one audit
// chain entry for the run.
func (o *Orchestrator) finalize(jobID, label string, batches []Batch, jw *journal.Writer, runErr error) {
	status := jobstore.StatusDone
	var errs []string
	if runErr != nil {
		status = jobstore.StatusFailed
		errs = []string{runErr.Error()}
	}
	finished := o.clock.Now().UTC()

	if err := o.store.Update(jobID, func(j *jobstore.Job) {
		j.Status = status
		j.FinishedAt = &finished
		j.Errors = append(j.Errors, errs...)
	}); err != nil {
		slog.Error("finalize persist failed", "job_id", jobID, "error", err)
	}

	o.journalAppend(jw, journal.Entry{Type: journal.TypeFinalize, Status: string(status)})

	refs := make([]string, 0, len(batches))
	for _, b := range batches {
		refs = append(refs, b.Op)
	}
	if _, err := o.chain.Append(audit.Entry{
		JobID:      jobID,
		Status:     string(status),
		FinishedAt: finished.Format(time.RFC3339),
		BatchRefs:  refs,
		Errors:     errs,
		Label:      label,
	}); err != nil {
		slog.Error("audit append failed", "job_id", jobID, "error", err)
	}

	slog.Info("job finished", "job_id", jobID, "status", status, "errors", len(errs))
}

// journalAppend stamps and writes an entry, logging rather than failing the
// job when journaling itself breaks: the journal is evidence, not a gate.
func (o *Orchestrator) journalAppend(jw *journal.Writer, e journal.Entry) {
	e.TS = o.clock.Now().UTC()
	if err := jw.Append(e); err != nil {
		slog.Error("journal append failed", "path", jw.Path(), "error", err)
	}
}
