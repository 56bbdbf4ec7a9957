package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "tidings/pkg/logx"
)

// Watch re-reads the config file on change and calls onChange with each
// successfully parsed version. Invalid files are logged and skipped, so the
// running process keeps its last good config.
//
// Blocks until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, log logx.Logger, onChange func(*Config)) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	// Debounce to avoid reacting to partial writes; editors often emit
	// several events for one save.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			cfg, err := m.Parse()
			if err != nil {
				log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
				return
			}
			m.Commit(cfg)
			log.Info("config reloaded", logx.String("path", m.path))
			if onChange != nil {
				onChange(cfg)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", logx.Err(err))
		}
	}
}
