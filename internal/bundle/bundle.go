package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tessellated/drover/internal/fsops"
)

// Mode selects the output format/strategy used to combine inputs.
type Mode string

const (
	// ModeZip packs the inputs into a zip archive. Default.
	ModeZip Mode = "zip_bundle"
	// ModePDFMerge merges PDF inputs into one document.
	ModePDFMerge Mode = "pdf_merge"
	// ModeDocxMerge splices the bodies of docx inputs into the first one.
	ModeDocxMerge Mode = "docx_merge"
	// ModeTextConcat joins text inputs with a blank-line separator.
	ModeTextConcat Mode = "text_concat"
)

// ParseMode maps a request mode string to a Mode. Empty defaults to zip.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeZip, ModePDFMerge, ModeDocxMerge, ModeTextConcat:
		return Mode(s), nil
	case "":
		return ModeZip, nil
	default:
		return "", &Error{Code: CodeUnsupportedMode, Mode: Mode(s), Message: "unknown bundle mode"}
	}
}

// Limits are the resource guards applied to every build.
// A zero ceiling disables that particular guard.
type Limits struct {
	MaxFileBytes  int64
	MaxTotalBytes int64
	TimeBudget    time.Duration
}

// Manifest is the sidecar written next to every bundle artifact.
type Manifest struct {
	Inputs    []string  `json:"inputs"`
	Mode      Mode      `json:"mode"`
	Bytes     int64     `json:"bytes"`
	Warnings  []string  `json:"warnings"`
	CreatedAt time.Time `json:"created_at"`
}

// Builder assembles bundles under a scratch directory.
//
// Builds are independent; one Builder may serve concurrent jobs as long as
// each job uses its own destination.
type Builder struct {
	scratch string
	limits  Limits
	now     func() time.Time // override point for budget tests
}

// NewBuilder creates a Builder that stages artifacts under scratchDir.
func NewBuilder(scratchDir string, limits Limits) *Builder {
	return &Builder{scratch: scratchDir, limits: limits, now: time.Now}
}

// Build combines inputs into dest using mode and writes the manifest sidecar.
//
// Guards run strictly before any bytes are produced: inputs are stat'd
// against both ceilings, and the time budget is re-checked after the backend
// finishes (a build that overran is discarded, not promoted). The artifact is
// staged in the scratch directory and atomically promoted into dest.
func (b *Builder) Build(inputs []string, mode Mode, dest string) (*Manifest, error) {
	start := b.now()

	if len(inputs) == 0 {
		return nil, &Error{Code: CodeBuildFailed, Mode: mode, Message: "no inputs"}
	}

	var total int64
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil || !info.Mode().IsRegular() {
			return nil, &Error{Code: CodeMissingInput, Mode: mode, Path: in, Message: "input is not a readable regular file", Err: err}
		}
		if b.limits.MaxFileBytes > 0 && info.Size() > b.limits.MaxFileBytes {
			return nil, &Error{
				Code: CodeOversizedInput, Mode: mode, Path: in,
				Message: fmt.Sprintf("input is %d bytes, ceiling is %d", info.Size(), b.limits.MaxFileBytes),
			}
		}
		total += info.Size()
	}
	if b.limits.MaxTotalBytes > 0 && total > b.limits.MaxTotalBytes {
		return nil, &Error{
			Code: CodeTotalSizeExceeded, Mode: mode,
			Message: fmt.Sprintf("inputs total %d bytes, ceiling is %d", total, b.limits.MaxTotalBytes),
		}
	}
	if err := b.checkBudget(mode, start); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(b.scratch, 0o755); err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: mode, Message: "create scratch dir", Err: err}
	}
	tmp := filepath.Join(b.scratch, "bundle-"+uuid.NewString())

	var (
		warnings []string
		err      error
	)
	switch mode {
	case ModeZip:
		warnings, err = buildZip(inputs, tmp)
	case ModeTextConcat:
		warnings, err = buildTextConcat(inputs, tmp)
	case ModePDFMerge:
		warnings, err = buildPDFMerge(inputs, tmp)
	case ModeDocxMerge:
		warnings, err = buildDocxMerge(inputs, tmp)
	default:
		return nil, &Error{Code: CodeUnsupportedMode, Mode: mode, Message: "unknown bundle mode"}
	}
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}

	// Budget is re-checked after building: a slow backend must not get its
	// artifact promoted just because the guard only ran up front.
	if err := b.checkBudget(mode, start); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	built, statErr := os.Stat(tmp)
	if statErr != nil {
		os.Remove(tmp)
		return nil, &Error{Code: CodeBuildFailed, Mode: mode, Message: "stat artifact", Err: statErr}
	}

	if err := promote(tmp, dest); err != nil {
		os.Remove(tmp)
		return nil, &Error{Code: CodeBuildFailed, Mode: mode, Path: dest, Message: "promote artifact", Err: err}
	}

	if warnings == nil {
		warnings = []string{}
	}
	manifest := &Manifest{
		Inputs:    inputs,
		Mode:      mode,
		Bytes:     built.Size(),
		Warnings:  warnings,
		CreatedAt: start.UTC(),
	}
	if err := writeManifest(dest, manifest); err != nil {
		return nil, err
	}

	slog.Info("bundle built",
		"mode", mode,
		"dest", dest,
		"inputs", len(inputs),
		"bytes", built.Size(),
		"warnings", len(warnings),
	)
	return manifest, nil
}

// checkBudget fails the build when the wall-clock budget has elapsed.
func (b *Builder) checkBudget(mode Mode, start time.Time) error {
	if b.limits.TimeBudget <= 0 {
		return nil
	}
	if elapsed := b.now().Sub(start); elapsed > b.limits.TimeBudget {
		return &Error{
			Code: CodeTimeBudgetExceeded, Mode: mode,
			Message: fmt.Sprintf("elapsed %s exceeds budget %s", elapsed, b.limits.TimeBudget),
		}
	}
	return nil
}

// ManifestPath returns the sidecar path for a bundle destination.
func ManifestPath(dest string) string {
	return dest + ".bundle.json"
}

func writeManifest(dest string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &Error{Code: CodeBuildFailed, Mode: m.Mode, Message: "encode manifest", Err: err}
	}
	if err := fsops.WriteFileAtomic(ManifestPath(dest), append(data, '\n'), 0o644); err != nil {
		return &Error{Code: CodeBuildFailed, Mode: m.Mode, Path: ManifestPath(dest), Message: "write manifest", Err: err}
	}
	return nil
}

// promote renames the staged artifact into place. When scratch and dest sit
// on different volumes the rename is retried as copy + rename inside the
// destination directory.
func promote(tmp, dest string) error {
	err := os.Rename(tmp, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	data, readErr := os.ReadFile(tmp)
	if readErr != nil {
		return readErr
	}
	if writeErr := fsops.WriteFileAtomic(dest, data, 0o644); writeErr != nil {
		return writeErr
	}
	return os.Remove(tmp)
}
