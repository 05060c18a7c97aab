package bundle

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes bundle build failures.
type ErrorCode string

const (
	// CodeOversizedInput indicates a single input exceeds the per-file ceiling.
	CodeOversizedInput ErrorCode = "OVERSIZED_INPUT"

	// CodeTotalSizeExceeded indicates the inputs together exceed the
	// cumulative ceiling.
	CodeTotalSizeExceeded ErrorCode = "TOTAL_SIZE_EXCEEDED"

	// CodeUnsupportedMode indicates an unknown bundle mode string.
	CodeUnsupportedMode ErrorCode = "UNSUPPORTED_MODE"

	// CodeMissingDependency indicates the backend for a mode is unavailable.
	CodeMissingDependency ErrorCode = "MISSING_DEPENDENCY"

	// CodeTimeBudgetExceeded indicates the build overran its wall-clock budget.
	CodeTimeBudgetExceeded ErrorCode = "TIME_BUDGET_EXCEEDED"

	// CodeMissingInput indicates an input path does not exist or is not a
	// regular file.
	CodeMissingInput ErrorCode = "MISSING_INPUT"

	// CodeBuildFailed covers backend failures (corrupt PDF, unreadable docx,
	// I/O errors while writing the artifact).
	CodeBuildFailed ErrorCode = "BUILD_FAILED"
)

// Error is the distinguished error type for all bundle failures.
// It carries enough structure for the orchestrator to journal the failure
// without parsing the message.
type Error struct {
	Code    ErrorCode
	Mode    Mode
	Path    string // offending input or destination, when applicable
	Message string
	Err     error // underlying cause, optional
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (mode=%s, path=%s)", e.Code, e.Message, e.Mode, e.Path)
	}
	return fmt.Sprintf("%s: %s (mode=%s)", e.Code, e.Message, e.Mode)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsBundleError reports whether err is (or wraps) a bundle *Error.
func IsBundleError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

// CodeOf extracts the error code from a bundle error chain.
// Returns "" when err is not a bundle error.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
