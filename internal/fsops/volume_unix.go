//go:build !windows

package fsops

import (
	"fmt"
	"os"
	"syscall"
)

// SameVolume reports whether the two existing paths live on the same device.
// Used by preview to attach the cross-volume warning before any mutation.
func SameVolume(a, b string) (bool, error) {
	da, err := deviceOf(a)
	if err != nil {
		return false, err
	}
	db, err := deviceOf(b)
	if err != nil {
		return false, err
	}
	return da == db, nil
}

func deviceOf(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", path, err)
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("no device info for %q", path)
	}
	return uint64(st.Dev), nil
}
