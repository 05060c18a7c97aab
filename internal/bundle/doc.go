// Package bundle assembles N input files into one output artifact.
//
// Supported modes: zip_bundle (default), text_concat, pdf_merge, docx_merge.
// Every build enforces a per-file size ceiling, a cumulative size ceiling,
// and a wall-clock time budget (checked before starting and again after
// building). Output is produced in a scratch directory and atomically
// promoted into the destination, followed by a manifest sidecar
// (<dest>.bundle.json) recording inputs, mode, byte count, and non-fatal
// warnings.
//
// All failures are reported as *Error with a machine-readable Code; callers
// (the orchestrator) catch them at the job boundary and turn them into job
// failures.
package bundle
