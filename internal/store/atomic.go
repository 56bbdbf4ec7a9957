package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWrite replaces path with data using a same-directory temp file and
// rename, so a reader never observes a partially written file. A crash
// between the temp write and the rename leaves the previous version intact.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// rotateBackups shifts path.bak.1 -> .bak.2 -> ... and copies the current
// file to path.bak.1. The oldest backup beyond maxBackups is dropped.
func rotateBackups(path string, maxBackups int) error {
	if maxBackups <= 0 {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil // nothing to snapshot
	}

	oldest := fmt.Sprintf("%s.bak.%d", path, maxBackups)
	_ = os.Remove(oldest)
	for i := maxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.bak.%d", path, i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, fmt.Sprintf("%s.bak.%d", path, i+1)); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return AtomicWrite(path+".bak.1", data)
}
