// Package orch composes the filesystem executor, bundle builder, step
// journal, audit chain, and job store into the two-phase batch engine:
//
//   - Preview classifies every item of every batch without touching disk.
//     DENY and ERROR are expected outcomes carried as data, never as Go
//     errors; OK is the sole gate for mutation.
//   - Execute checks idempotency, creates a job in the running state, binds
//     idempotency keys, and hands the mutating work to a bounded worker
//     pool. The call returns before any mutation starts; callers observe
//     the job only by polling.
//
// Job lifecycle: submitted work enters running and terminates in done or
// failed. Failure is fail-fast at job granularity: the first unhandled
// execution error aborts the remaining batches of that job. Rollback
// descriptors are accumulated as bookkeeping only and never auto-applied.
//
// The orchestrator is an explicit instance with injected dependencies
// (scope, clock, storage layout); there is no package-level state.
package orch
