package jobstore

import "time"

// Status is a job lifecycle state. running is the only non-terminal state;
// done and failed are terminal.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Progress counts processed items against the preview total. Readers may
// observe intermediate values; every persisted snapshot is internally
// consistent.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// RollbackStep is an advisory inverse-operation descriptor. The engine never
// applies these; they exist so an operator can manually reverse a job.
type RollbackStep struct {
	Op   string `json:"op"`             // "move" or "remove"
	Src  string `json:"src,omitempty"`  // move: current location
	Dest string `json:"dest,omitempty"` // move: original location
	Path string `json:"path,omitempty"` // remove: created artifact
}

// Job is the durable record of one execute() call. Owned exclusively by the
// orchestrator and mutated only through Store.Update.
type Job struct {
	ID          string         `json:"job_id"`
	Status      Status         `json:"status"`
	Progress    Progress       `json:"progress"`
	Errors      []string       `json:"errors"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Label       string         `json:"label,omitempty"`
	JournalPath string         `json:"journal_path"`
	Rollback    []RollbackStep `json:"rollback"`
}

// clone returns a deep copy so callers can never alias store-owned state.
func (j *Job) clone() Job {
	out := *j
	out.Errors = append([]string(nil), j.Errors...)
	out.Rollback = append([]RollbackStep(nil), j.Rollback...)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
