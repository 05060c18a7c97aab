package orch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellated/drover/internal/audit"
	"github.com/tessellated/drover/internal/jobstore"
	"github.com/tessellated/drover/internal/journal"
)

func TestExecute_RenameWithCollisionEndToEnd(t *testing.T) {
	o, root := newTestOrch(t)
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "b.txt"), "beta")

	res, err := o.Execute([]Batch{{
		Op: OpRenameBatch,
		Items: []Item{{
			"old_path": filepath.Join(root, "a.txt"),
			"new_path": filepath.Join(root, "b.txt"),
		}},
	}}, "nightly tidy")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.Duplicate)
	o.Wait()

	// a.txt was renamed around the pre-existing b.txt.
	data, err := os.ReadFile(filepath.Join(root, "b-1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	_, statErr := os.Lstat(filepath.Join(root, "a.txt"))
	assert.True(t, os.IsNotExist(statErr))

	job, ok := o.GetJob(res.JobID)
	require.True(t, ok)
	assert.Equal(t, jobstore.StatusDone, job.Status)
	assert.Equal(t, jobstore.Progress{Done: 1, Total: 1}, job.Progress)
	assert.Empty(t, job.Errors)
	assert.Equal(t, "nightly tidy", job.Label)
	require.NotNil(t, job.FinishedAt)
	require.Len(t, job.Rollback, 1)
	assert.Equal(t, jobstore.RollbackStep{
		Op:   "move",
		Src:  filepath.Join(root, "b-1.txt"),
		Dest: filepath.Join(root, "a.txt"),
	}, job.Rollback[0])

	// Journal holds prepare, one step, finalize.
	entries, err := journal.Read(job.JournalPath)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, journal.TypePrepare, entries[0].Type)
	assert.Equal(t, journal.TypeStep, entries[1].Type)
	assert.Equal(t, filepath.Join(root, "a.txt"), entries[1].Src)
	assert.Equal(t, journal.TypeFinalize, entries[2].Type)
	assert.Equal(t, "done", entries[2].Status)

	// Exactly one audit entry, chained and verifiable.
	require.NoError(t, audit.Verify(o.AuditPath()))
	audited, err := audit.Read(o.AuditPath())
	require.NoError(t, err)
	require.Len(t, audited, 1)
	assert.Equal(t, res.JobID, audited[0].JobID)
	assert.Equal(t, "done", audited[0].Status)
	assert.Equal(t, []string{OpRenameBatch}, audited[0].BatchRefs)
	assert.Equal(t, "nightly tidy", audited[0].Label)
}

func TestExecute_IdempotentResubmission(t *testing.T) {
	o, root := newTestOrch(t)
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")

	batches := []Batch{{
		Op:             OpRenameBatch,
		IdempotencyKey: "req-42",
		Items: []Item{{
			"old_path": filepath.Join(root, "a.txt"),
			"new_path": filepath.Join(root, "b.txt"),
		}},
	}}

	first, err := o.Execute(batches, "")
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	o.Wait()

	second, err := o.Execute(batches, "")
	require.NoError(t, err)
	assert.Equal(t, first.JobID, second.JobID)
	assert.False(t, second.Accepted)
	assert.True(t, second.Duplicate)
	o.Wait()

	// Mutated exactly once: a.txt is gone, b.txt exists, no b-1.txt from a
	// second run.
	_, err = os.Lstat(filepath.Join(root, "b.txt"))
	require.NoError(t, err)
	_, err = os.Lstat(filepath.Join(root, "b-1.txt"))
	assert.True(t, os.IsNotExist(err))

	// Only one job and one audit entry exist.
	assert.Len(t, o.ListJobs(), 1)
	audited, err := audit.Read(o.AuditPath())
	require.NoError(t, err)
	assert.Len(t, audited, 1)
}

func TestExecute_IdempotencyConflict(t *testing.T) {
	o, root := newTestOrch(t)
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	mkBatch := func(key, src, dst string) Batch {
		return Batch{Op: OpMoveBatch, IdempotencyKey: key, Items: []Item{{
			"old_path": filepath.Join(root, src),
			"new_path": filepath.Join(root, dst),
		}}}
	}

	r1, err := o.Execute([]Batch{mkBatch("key-a", "a.txt", "a2.txt")}, "")
	require.NoError(t, err)
	r2, err := o.Execute([]Batch{mkBatch("key-b", "b.txt", "b2.txt")}, "")
	require.NoError(t, err)
	o.Wait()
	require.NotEqual(t, r1.JobID, r2.JobID)

	// Two keys bound to two different jobs in one submission: conflict,
	// surfaced synchronously, and no third job is created.
	_, err = o.Execute([]Batch{mkBatch("key-a", "x", "y"), mkBatch("key-b", "x", "y")}, "")
	require.Error(t, err)
	assert.Equal(t, CodeIdempotencyConflict, ValidationCodeOf(err))
	assert.Len(t, o.ListJobs(), 2)
}

func TestExecute_DeniedItemsAreNotMutated(t *testing.T) {
	o, root := newTestOrch(t)
	outside := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "keep")

	res, err := o.Execute([]Batch{{
		Op: OpMoveBatch,
		Items: []Item{
			{"old_path": filepath.Join(root, "keep.txt"), "new_path": filepath.Join(outside, "leaked.txt")},
		},
	}}, "")
	require.NoError(t, err)
	o.Wait()

	// The deny was processed as a skip; nothing moved, job completed.
	_, err = os.Lstat(filepath.Join(root, "keep.txt"))
	require.NoError(t, err)
	_, err = os.Lstat(filepath.Join(outside, "leaked.txt"))
	assert.True(t, os.IsNotExist(err))

	job, _ := o.GetJob(res.JobID)
	assert.Equal(t, jobstore.StatusDone, job.Status)
	assert.Equal(t, jobstore.Progress{Done: 1, Total: 1}, job.Progress)
	assert.Empty(t, job.Rollback)
}

func TestExecute_SourceVanishedBetweenPreviewAndRun(t *testing.T) {
	o, root := newTestOrch(t)
	doomed := filepath.Join(root, "doomed.txt")
	writeFile(t, doomed, "x")
	writeFile(t, filepath.Join(root, "later.txt"), "y")

	// Sabotage between classification and execution: Execute previews
	// synchronously, then the file is removed before the worker moves it.
	// The semaphore is saturated to delay the run deterministically.
	o.sem <- struct{}{}
	o.sem <- struct{}{}

	res, err := o.Execute([]Batch{
		{Op: OpRenameBatch, Items: []Item{{"old_path": doomed, "new_path": filepath.Join(root, "renamed.txt")}}},
		{Op: OpRenameBatch, Items: []Item{{"old_path": filepath.Join(root, "later.txt"), "new_path": filepath.Join(root, "later2.txt")}}},
	}, "")
	require.NoError(t, err)
	require.NoError(t, os.Remove(doomed))
	<-o.sem
	<-o.sem
	o.Wait()

	// Fail-fast at job granularity: the whole job fails and the second
	// batch is never attempted.
	job, _ := o.GetJob(res.JobID)
	assert.Equal(t, jobstore.StatusFailed, job.Status)
	require.NotEmpty(t, job.Errors)
	_, err = os.Lstat(filepath.Join(root, "later.txt"))
	require.NoError(t, err, "second batch must not have run")

	entries, jerr := journal.Read(job.JournalPath)
	require.NoError(t, jerr)
	var types []string
	for _, e := range entries {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{journal.TypePrepare, journal.TypeError, journal.TypeFinalize}, types)

	// The failure still produced exactly one chained audit entry.
	require.NoError(t, audit.Verify(o.AuditPath()))
	audited, err := audit.Read(o.AuditPath())
	require.NoError(t, err)
	require.Len(t, audited, 1)
	assert.Equal(t, "failed", audited[0].Status)
	assert.NotEmpty(t, audited[0].Errors)
}

func TestExecute_BundleCreateEndToEnd(t *testing.T) {
	o, root := newTestOrch(t)
	in1 := filepath.Join(root, "one.txt")
	in2 := filepath.Join(root, "two.txt")
	writeFile(t, in1, "first")
	writeFile(t, in2, "second")
	target := filepath.Join(root, "merged.txt")

	res, err := o.Execute([]Batch{{
		Op:         OpBundleCreate,
		TargetPath: target,
		Mode:       "text_concat",
		Items:      []Item{{"path": in1}, {"path": in2}},
	}}, "")
	require.NoError(t, err)
	o.Wait()

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", string(data))

	// Manifest sidecar sits next to the artifact.
	_, err = os.Lstat(target + ".bundle.json")
	require.NoError(t, err)

	job, _ := o.GetJob(res.JobID)
	assert.Equal(t, jobstore.StatusDone, job.Status)
	assert.Equal(t, jobstore.Progress{Done: 2, Total: 2}, job.Progress)
	require.Len(t, job.Rollback, 1)
	assert.Equal(t, jobstore.RollbackStep{Op: "remove", Path: target}, job.Rollback[0])

	// Inputs are untouched: bundling reads, never consumes.
	_, err = os.Lstat(in1)
	require.NoError(t, err)
	_, err = os.Lstat(in2)
	require.NoError(t, err)
}

func TestExecute_AuditChainGrowsAcrossJobs(t *testing.T) {
	o, root := newTestOrch(t)
	for _, name := range []string{"f1.txt", "f2.txt", "f3.txt"} {
		writeFile(t, filepath.Join(root, name), name)
		_, err := o.Execute([]Batch{{
			Op:    OpRenameBatch,
			Items: []Item{{"old_path": filepath.Join(root, name), "new_path": filepath.Join(root, "moved-"+name)}},
		}}, "")
		require.NoError(t, err)
		o.Wait()
	}

	require.NoError(t, audit.Verify(o.AuditPath()))
	entries, err := audit.Read(o.AuditPath())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Hash, entries[i].PrevHash)
	}
}
