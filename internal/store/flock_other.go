//go:build !unix

package store

import "os"

// Without flock(2), exclusive creation of the sidecar is the lock itself,
// so release must unlink it. A crashed holder leaves the sidecar behind;
// operators remove it by hand.
const removeSidecarOnRelease = true

func sysAcquire(lockPath string) (*os.File, error) {
	return os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
}

func sysRelease(*os.File) error { return nil }
