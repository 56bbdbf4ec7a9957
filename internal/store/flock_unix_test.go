//go:build unix

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelease_KeepsSidecarUnderFlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	l1, err := AcquireLock(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	// The sidecar has to survive release: a waiter that already opened it
	// keeps contending on the same inode as the next acquirer. Unlinking
	// would split contenders across two inodes and admit two holders.
	require.FileExists(t, path+".lock")

	before, err := os.Stat(path + ".lock")
	require.NoError(t, err)

	l2, err := AcquireLock(path, time.Second)
	require.NoError(t, err)
	after, err := os.Stat(path + ".lock")
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after))
	require.NoError(t, l2.Release())
}
