package fsops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Quarantine directory for originals displaced by cross-volume moves,
// relative to the source's allow-listed root. Originals land here instead of
// being deleted so a failed or unwanted cross-volume move can be manually
// recovered.
const (
	quarantineDir    = "Quarantine"
	quarantineSubdir = "MoveSource"
)

// Executor performs scope-checked filesystem mutations.
type Executor struct {
	scope *Scope
}

// NewExecutor creates an Executor bound to a scope. The executor refuses to
// touch any path the scope does not allow; callers are expected to have
// collision-resolved destinations beforehand (Move does not re-resolve).
func NewExecutor(scope *Scope) *Executor {
	return &Executor{scope: scope}
}

// Scope returns the executor's scope, for classification by callers.
func (e *Executor) Scope() *Scope {
	return e.scope
}

// MoveResult describes what a Move actually did.
type MoveResult struct {
	// CrossVolume is true when the move was executed as copy + quarantine.
	CrossVolume bool
	// QuarantinePath is where the original source landed after a
	// cross-volume move. Empty for same-volume renames.
	QuarantinePath string
}

// Move moves src to dst.
//
// Same volume: a single atomic os.Rename.
//
// Cross volume: src is copied to a randomized temp name in dst's directory,
// the copy is atomically promoted to dst, and src is then RELOCATED (never
// deleted) into <root>/Quarantine/MoveSource, itself collision-resolved.
// Copy-then-quarantine, never delete-then-copy: if anything fails partway
// the original bytes still exist at src or in quarantine.
//
// Both endpoints must be in scope; this is re-checked here so the executor
// is safe even against a caller that skipped classification.
func (e *Executor) Move(src, dst string) (MoveResult, error) {
	if !e.scope.Allows(src) {
		return MoveResult{}, fmt.Errorf("move source out of scope: %q", src)
	}
	if !e.scope.Allows(dst) {
		return MoveResult{}, fmt.Errorf("move destination out of scope: %q", dst)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return MoveResult{}, nil
	}
	if !isCrossDevice(err) {
		return MoveResult{}, fmt.Errorf("rename %q to %q: %w", src, dst, err)
	}

	quarantined, qerr := e.crossVolumeMove(src, dst)
	if qerr != nil {
		return MoveResult{}, qerr
	}
	return MoveResult{CrossVolume: true, QuarantinePath: quarantined}, nil
}

// crossVolumeMove implements copy + promote + quarantine. Returns the
// quarantine path of the original source.
func (e *Executor) crossVolumeMove(src, dst string) (string, error) {
	tmp, err := copyFile(src, filepath.Dir(dst))
	if err != nil {
		return "", fmt.Errorf("cross-volume copy %q: %w", src, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("promote %q to %q: %w", tmp, dst, err)
	}

	root, ok := e.scope.RootFor(src)
	if !ok {
		// Scope was checked on entry; a miss here means the configuration
		// changed underneath us.
		return "", fmt.Errorf("no allow-listed root contains %q", src)
	}
	qdir := filepath.Join(root, quarantineDir, quarantineSubdir)
	if err := os.MkdirAll(qdir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine dir %q: %w", qdir, err)
	}
	qpath, err := ResolveCollision(filepath.Join(qdir, filepath.Base(src)))
	if err != nil {
		return "", fmt.Errorf("resolve quarantine name for %q: %w", src, err)
	}
	if err := os.Rename(src, qpath); err != nil {
		return "", fmt.Errorf("quarantine %q: %w", src, err)
	}
	return qpath, nil
}

// isCrossDevice reports whether err is the "invalid cross-device link"
// failure os.Rename returns when src and dst are on different volumes.
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
