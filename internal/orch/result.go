package orch

// ItemStatus is the classification of one item by preview.
type ItemStatus string

const (
	// StatusOK marks an item as an approved mutation candidate.
	StatusOK ItemStatus = "OK"
	// StatusDeny marks an item refused by policy. Not an error.
	StatusDeny ItemStatus = "DENY"
	// StatusError marks an item that cannot be executed as submitted.
	StatusError ItemStatus = "ERROR"
)

// Reason codes attached to DENY/ERROR classifications. These are data, part
// of the preview vocabulary, not error strings.
const (
	ReasonUnsupportedOp        = "unsupported_op"
	ReasonUnsupportedScope     = "unsupported_scope"
	ReasonUnsupportedCollision = "unsupported_collision"
	ReasonUnsupportedMode      = "unsupported_mode"
	ReasonMissingPaths         = "missing_paths"
	ReasonMissingSource        = "missing_source"
	ReasonMissingTarget        = "missing_target"
	ReasonOutOfScope           = "out_of_scope"
	ReasonCollisionExhausted   = "collision_exhausted"
)

// WarnCrossDriveQuarantine is attached to OK items whose resolved
// destination is on a different volume than the source: the move will be
// executed as copy + quarantine.
const WarnCrossDriveQuarantine = "cross_drive_copy_quarantine"

// ItemResult is preview's verdict on a single item.
type ItemResult struct {
	Item         Item       `json:"item"`
	Status       ItemStatus `json:"status"`
	ResolvedPath string     `json:"resolved_path,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Warnings     []string   `json:"warnings,omitempty"`
}

// BatchResult groups the item verdicts of one batch.
type BatchResult struct {
	Op      string       `json:"op"`
	Results []ItemResult `json:"results"`
}

// Summary counts classifications across all batches.
type Summary struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Deny  int `json:"deny"`
	Error int `json:"error"`
}

// PreviewResult is the full classification of a submission.
type PreviewResult struct {
	Summary Summary       `json:"summary"`
	Batches []BatchResult `json:"batches"`
}

// add records one verdict in the summary.
func (s *Summary) add(status ItemStatus) {
	s.Total++
	switch status {
	case StatusOK:
		s.OK++
	case StatusDeny:
		s.Deny++
	case StatusError:
		s.Error++
	}
}

// ExecuteResult is the synchronous accept/duplicate answer from Execute.
type ExecuteResult struct {
	JobID     string `json:"job_id"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
