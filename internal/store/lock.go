package store

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockTimeout means the exclusive lock could not be acquired in time.
// The caller must treat the protected operation as failed; the store never
// proceeds unlocked.
var ErrLockTimeout = errors.New("lock acquisition timed out")

const lockPollInterval = 50 * time.Millisecond

// PathLock is an advisory exclusive lock keyed by file path, held via a
// ".lock" sidecar next to the protected file. Local-process/host scope only.
type PathLock struct {
	lockPath string
	f        *os.File
}

// AcquireLock takes the exclusive lock for path, polling until timeout.
func AcquireLock(path string, timeout time.Duration) (*PathLock, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lockPath := path + ".lock"
	deadline := time.Now().Add(timeout)

	for {
		f, err := sysAcquire(lockPath)
		if err == nil {
			return &PathLock{lockPath: lockPath, f: f}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrLockTimeout, path, timeout)
		}
		time.Sleep(lockPollInterval)
	}
}

// Release drops the lock. The sidecar is unlinked only where exclusive
// creation is the lock itself: under flock the file must stay, or a waiter
// holding the old inode and a contender creating a fresh one could both
// acquire at once.
func (l *PathLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := sysRelease(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	if removeSidecarOnRelease {
		_ = os.Remove(l.lockPath)
	}
	return err
}
