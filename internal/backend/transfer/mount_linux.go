//go:build linux

package transfer

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// isMountPoint reports whether path is the root of a mounted
// filesystem, not merely an existing directory. Catches an unmounted
// backup drive before any file operations are attempted.
func isMountPoint(path string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}

	parent := filepath.Dir(path)
	var pst unix.Stat_t
	if err := unix.Stat(parent, &pst); err != nil {
		return false, err
	}

	// A mount root lives on a different device than its parent,
	// except for "/" which is trivially a mount point.
	return st.Dev != pst.Dev || path == "/", nil
}
