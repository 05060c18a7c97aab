package fsops

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxCollisionAttempts bounds the append-1 search so a pathological directory
// (or a racing writer) cannot spin the resolver forever.
const maxCollisionAttempts = 10000

// ResolveCollision returns target unchanged if nothing exists there,
// otherwise the first "name-N.ext" (N = 1, 2, ...) that does not exist.
//
// The resolution is deterministic and side-effect-free: it only stats
// candidate names and never creates anything, so preview can call it
// repeatedly with identical results as long as the directory is unchanged.
func ResolveCollision(target string) (string, error) {
	if !pathExists(target) {
		return target, nil
	}

	dir := filepath.Dir(target)
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(filepath.Base(target), ext)

	for n := 1; n <= maxCollisionAttempts; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
		if !pathExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("collision resolution exhausted after %d attempts for %q", maxCollisionAttempts, target)
}
