package orch

import (
	"errors"
	"fmt"
)

// ValidationCode categorizes synchronous submission failures. These surface
// before any job is created: no job record, no journal entry, no audit line.
type ValidationCode string

const (
	// CodeBatchLimitExceeded indicates a batch carries more items than the
	// per-batch cap.
	CodeBatchLimitExceeded ValidationCode = "batch_limit_exceeded"

	// CodeIdempotencyConflict indicates the submission's idempotency keys
	// map to different existing jobs.
	CodeIdempotencyConflict ValidationCode = "idempotency_conflict"
)

// ValidationError is the coded error returned synchronously by Preview and
// Execute for submissions that are refused wholesale.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationCodeOf extracts the code from a validation error chain.
// Returns "" when err is not a ValidationError.
func ValidationCodeOf(err error) ValidationCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
