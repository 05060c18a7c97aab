package orch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tessellated/drover/internal/bundle"
	"github.com/tessellated/drover/internal/fsops"
)

// Preview classifies every item of every batch without mutating disk state.
// It is pure with respect to the filesystem (reads only) and safe to call
// repeatedly; identical input against identical disk state yields identical
// output.
//
// The only error conditions are whole-call validation failures (the
// per-batch item cap); everything item-level is expressed in the returned
// classification.
func (o *Orchestrator) Preview(batches []Batch) (*PreviewResult, error) {
	res := &PreviewResult{Batches: make([]BatchResult, 0, len(batches))}

	for i, batch := range batches {
		if len(batch.Items) > o.batchItemLimit {
			return nil, &ValidationError{
				Code:    CodeBatchLimitExceeded,
				Message: fmt.Sprintf("batch %d has %d items, cap is %d", i, len(batch.Items), o.batchItemLimit),
			}
		}

		br := BatchResult{Op: batch.Op, Results: make([]ItemResult, 0, len(batch.Items))}

		switch {
		case parseOp(batch.Op) == opUnsupported:
			br.Results = denyAll(batch.Items, ReasonUnsupportedOp)
		case !scopeAllowed(batch.Constraints):
			br.Results = denyAll(batch.Items, ReasonUnsupportedScope)
		case !collisionAllowed(batch.Constraints):
			br.Results = denyAll(batch.Items, ReasonUnsupportedCollision)
		default:
			switch parseOp(batch.Op) {
			case opRenameMove:
				br.Results = o.previewRenameMove(batch.Items)
			case opBundleCreate:
				br.Results = o.previewBundle(batch)
			}
		}

		for _, r := range br.Results {
			res.Summary.add(r.Status)
		}
		res.Batches = append(res.Batches, br)
	}
	return res, nil
}

// previewRenameMove classifies rename.batch / move.batch items.
func (o *Orchestrator) previewRenameMove(items []Item) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		results = append(results, o.classifyRenameMove(item))
	}
	return results
}

func (o *Orchestrator) classifyRenameMove(item Item) ItemResult {
	oldPath, okOld := item.stringField("old_path")
	newPath, okNew := item.stringField("new_path")
	if !okOld || !okNew {
		return ItemResult{Item: item, Status: StatusDeny, Reason: ReasonMissingPaths}
	}
	if !exists(oldPath) {
		return ItemResult{Item: item, Status: StatusError, Reason: ReasonMissingSource}
	}
	if !o.scope.Allows(oldPath) || !o.scope.Allows(newPath) {
		return ItemResult{Item: item, Status: StatusDeny, Reason: ReasonOutOfScope}
	}

	resolved, err := fsops.ResolveCollision(newPath)
	if err != nil {
		return ItemResult{Item: item, Status: StatusError, Reason: ReasonCollisionExhausted}
	}

	result := ItemResult{Item: item, Status: StatusOK, ResolvedPath: resolved}
	if same, err := fsops.SameVolume(oldPath, nearestExisting(filepath.Dir(resolved))); err == nil && !same {
		result.Warnings = append(result.Warnings, WarnCrossDriveQuarantine)
	}
	return result
}

// previewBundle classifies bundle.create items. The resolved target is
// computed once per batch and shared by all approved items.
func (o *Orchestrator) previewBundle(batch Batch) []ItemResult {
	if batch.TargetPath == "" {
		return errorAll(batch.Items, ReasonMissingTarget)
	}
	if !o.scope.Allows(batch.TargetPath) {
		return denyAll(batch.Items, ReasonOutOfScope)
	}
	if !bundleModeKnown(batch.Mode) {
		return denyAll(batch.Items, ReasonUnsupportedMode)
	}

	resolvedTarget, err := fsops.ResolveCollision(batch.TargetPath)
	if err != nil {
		return errorAll(batch.Items, ReasonCollisionExhausted)
	}

	results := make([]ItemResult, 0, len(batch.Items))
	for _, item := range batch.Items {
		src, ok := item.sourcePath()
		switch {
		case !ok:
			results = append(results, ItemResult{Item: item, Status: StatusDeny, Reason: ReasonMissingPaths})
		case !exists(src):
			results = append(results, ItemResult{Item: item, Status: StatusError, Reason: ReasonMissingSource})
		case !o.scope.Allows(src):
			results = append(results, ItemResult{Item: item, Status: StatusDeny, Reason: ReasonOutOfScope})
		default:
			results = append(results, ItemResult{Item: item, Status: StatusOK, ResolvedPath: resolvedTarget})
		}
	}
	return results
}

func denyAll(items []Item, reason string) []ItemResult {
	out := make([]ItemResult, 0, len(items))
	for _, item := range items {
		out = append(out, ItemResult{Item: item, Status: StatusDeny, Reason: reason})
	}
	return out
}

func errorAll(items []Item, reason string) []ItemResult {
	out := make([]ItemResult, 0, len(items))
	for _, item := range items {
		out = append(out, ItemResult{Item: item, Status: StatusError, Reason: reason})
	}
	return out
}

func bundleModeKnown(mode string) bool {
	_, err := bundle.ParseMode(mode)
	return err == nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// nearestExisting walks up from path to the closest ancestor that exists,
// so volume comparison works for destinations in not-yet-created
// directories.
func nearestExisting(path string) string {
	for {
		if exists(path) {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
