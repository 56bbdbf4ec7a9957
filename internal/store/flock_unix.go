//go:build unix

package store

import (
	"os"

	"golang.org/x/sys/unix"
)

// The sidecar must outlive each holder: every contender has to flock the
// same inode for the lock to serialize them.
const removeSidecarOnRelease = false

// sysAcquire opens the sidecar and takes a non-blocking flock(2) on it.
// The open itself is not exclusive; the flock is what serializes writers.
func sysAcquire(lockPath string) (*os.File, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func sysRelease(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
