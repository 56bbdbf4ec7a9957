package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logx "tidings/pkg/logx"
)

const batchFilePattern = "daily_news_%s.json" // %s = YYYY-MM-DD

// Config configures the file-backed item store.
type Config struct {
	Dir         string
	ImagesDir   string // per-date image dirs swept alongside their batch
	LockTimeout time.Duration
	MaxBackups  int
	Retention   time.Duration // batches older than this are swept
}

// Store persists one batch file per calendar date.
//
// All writes go through an exclusive path lock and an atomic
// temp-then-rename replace, so concurrent writers never interleave and
// readers never see partial data.
type Store struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{cfg: cfg, log: log}, nil
}

// BatchPath returns the file a batch for the given date lives in.
func (s *Store) BatchPath(date time.Time) string {
	return filepath.Join(s.cfg.Dir, fmt.Sprintf(batchFilePattern, DateKey(date)))
}

// Dir returns the storage root.
func (s *Store) Dir() string { return s.cfg.Dir }

// GetBatch loads the batch for a date. A missing or unparseable file reads
// as ErrBatchNotFound, never as a fatal error.
func (s *Store) GetBatch(date time.Time) (*Batch, error) {
	return s.readBatch(s.BatchPath(date))
}

func (s *Store) readBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("read batch %s: %w", path, err)
	}
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		s.log.Warn("batch file unparseable, treating as absent",
			logx.String("path", path), logx.Err(err))
		return nil, ErrBatchNotFound
	}
	return &b, nil
}

// SaveBatch persists a batch under the exclusive lock. The previous version,
// if any, is snapshotted to a bounded backup rotation first.
func (s *Store) SaveBatch(date time.Time, b *Batch) error {
	path := s.BatchPath(date)
	lock, err := AcquireLock(path, s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	return s.writeBatchLocked(path, b)
}

func (s *Store) writeBatchLocked(path string, b *Batch) error {
	if err := rotateBackups(path, s.cfg.MaxBackups); err != nil {
		// Backup rotation is best-effort; the atomic replace below still
		// protects the previous version until the rename lands.
		s.log.Warn("backup rotation failed", logx.String("path", path), logx.Err(err))
	}

	b.TotalNews = len(b.News)
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := AtomicWrite(path, data); err != nil {
		return err
	}
	s.log.Debug("batch saved", logx.String("path", filepath.Base(path)), logx.Int("items", len(b.News)))
	return nil
}

// UpdateItem applies mutate to one item under the lock: load the current
// batch, mutate, atomically persist. The mutator sees the freshest on-disk
// state, not whatever the caller read earlier.
func (s *Store) UpdateItem(date time.Time, itemID string, mutate func(*Item) error) error {
	path := s.BatchPath(date)
	lock, err := AcquireLock(path, s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	b, err := s.readBatch(path)
	if err != nil {
		return err
	}
	it := b.Item(itemID)
	if it == nil {
		return fmt.Errorf("%w: %s in %s", ErrItemNotFound, itemID, b.Date)
	}
	if err := mutate(it); err != nil {
		return err
	}
	return s.writeBatchLocked(path, b)
}

// Dates lists the calendar days that have a batch file, newest first.
func (s *Store) Dates() ([]time.Time, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d, ok := batchFileDate(e.Name())
		if !ok {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

func batchFileDate(name string) (time.Time, bool) {
	const prefix, suffix = "daily_news_", ".json"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Sweep deletes batch files (plus their backups, stale locks, and per-date
// image dirs) older than the retention window. Returns the number of batches
// removed.
func (s *Store) Sweep(now time.Time) (int, error) {
	dates, err := s.Dates()
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-s.cfg.Retention)
	removed := 0
	for _, d := range dates {
		if !d.Before(cutoff) {
			continue
		}
		path := s.BatchPath(d)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("retention sweep failed", logx.String("path", path), logx.Err(err))
			continue
		}
		for i := 1; i <= s.cfg.MaxBackups; i++ {
			_ = os.Remove(fmt.Sprintf("%s.bak.%d", path, i))
		}
		_ = os.Remove(path + ".lock")
		if s.cfg.ImagesDir != "" {
			if err := os.RemoveAll(filepath.Join(s.cfg.ImagesDir, DateKey(d))); err != nil {
				s.log.Warn("image dir sweep failed", logx.String("date", DateKey(d)), logx.Err(err))
			}
		}
		removed++
		s.log.Info("old batch removed", logx.String("date", DateKey(d)))
	}
	return removed, nil
}
