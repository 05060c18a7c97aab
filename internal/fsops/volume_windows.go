//go:build windows

package fsops

import "path/filepath"

// SameVolume reports whether the two paths share a volume. On Windows the
// drive prefix of the absolute path decides this; no stat is needed.
func SameVolume(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return normalizePath(filepath.VolumeName(absA)) == normalizePath(filepath.VolumeName(absB)), nil
}
