package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

// Scope is the set of allow-listed roots outside of which no mutation may
// occur. A candidate path is allowed iff its normal form is equal to, or a
// proper descendant of, one of the roots' normal forms.
//
// Normalization is absolute + cleaned + Unicode case-folded, which makes the
// check drive-aware and stable on case-insensitive filesystems. Symlinks are
// intentionally NOT resolved: scope is a policy over the configured namespace,
// not over link targets.
//
// Scope is immutable after construction and safe for concurrent use.
type Scope struct {
	roots []scopeRoot
}

// scopeRoot pairs a root as configured (for reporting and for locating the
// quarantine directory) with its comparison normal form.
type scopeRoot struct {
	path string // absolute, cleaned, original casing
	norm string // case-folded comparison form
}

// NewScope builds a Scope from the configured allow-listed roots.
// Every root must be an absolute path; relative roots are a configuration
// error, not something to silently resolve against the working directory.
func NewScope(roots []string) (*Scope, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("scope requires at least one allow-listed root")
	}

	s := &Scope{roots: make([]scopeRoot, 0, len(roots))}
	for _, r := range roots {
		if !filepath.IsAbs(r) {
			return nil, fmt.Errorf("allow-listed root must be absolute: %q", r)
		}
		clean := filepath.Clean(r)
		s.roots = append(s.roots, scopeRoot{path: clean, norm: normalizePath(clean)})
	}
	return s, nil
}

// Allows reports whether path is equal to, or a proper descendant of, one of
// the allow-listed roots. Relative paths are resolved against the working
// directory before comparison.
func (s *Scope) Allows(path string) bool {
	_, ok := s.RootFor(path)
	return ok
}

// RootFor returns the allow-listed root (as configured) that contains path.
// Used by the executor to locate the quarantine directory for a source path.
func (s *Scope) RootFor(path string) (string, bool) {
	norm, err := normalizeAbs(path)
	if err != nil {
		return "", false
	}
	for _, root := range s.roots {
		if norm == root.norm {
			return root.path, true
		}
		if strings.HasPrefix(norm, root.norm+string(filepath.Separator)) {
			return root.path, true
		}
	}
	return "", false
}

// Roots returns the configured roots in their cleaned original form.
func (s *Scope) Roots() []string {
	out := make([]string, len(s.roots))
	for i, r := range s.roots {
		out[i] = r.path
	}
	return out
}

// normalizeAbs makes path absolute, then normalizes it for comparison.
func normalizeAbs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", path, err)
	}
	return normalizePath(abs), nil
}

// normalizePath case-folds a cleaned absolute path for comparison.
//
// cases.Fold implements full Unicode case folding, which subsumes the ASCII
// folding NTFS and APFS apply and keeps the comparison drive-letter aware
// (the volume name folds like any other component). A fresh caser is taken
// per call: cases.Caser carries internal state and is not safe for
// concurrent use.
func normalizePath(abs string) string {
	return cases.Fold().String(filepath.Clean(abs))
}

// pathExists reports whether path exists without following a trailing
// symlink. Shared by collision resolution and the executor.
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
