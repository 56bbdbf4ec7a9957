package dedup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tidings/internal/store"
	logx "tidings/pkg/logx"
)

// Record is one published message remembered for duplicate checks.
// Newest-first ordering is part of the on-disk contract.
type Record struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Preview   string    `json:"preview"`
}

// HistoryStore persists the rolling message history.
type HistoryStore interface {
	Load() ([]Record, error)
	Save([]Record) error
	Close() error
}

// HistoryConfig selects and configures the history backend.
//
// Driver values:
//   - "file": JSON array, atomic replace under a path lock (default)
//   - "sqlite": SQLite database (requires the sqlite build tag)
type HistoryConfig struct {
	Driver      string
	Path        string
	LockTimeout time.Duration
	BusyTimeout time.Duration // sqlite only
}

// OpenHistory initializes the configured history store.
func OpenHistory(cfg HistoryConfig, log logx.Logger) (HistoryStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFileHistory(cfg)
	case "sqlite", "sqlite3":
		return openSQLiteHistory(cfg, log)
	default:
		return nil, errors.New("unknown dedup history driver: " + driver)
	}
}

type fileHistory struct {
	path        string
	lockTimeout time.Duration
}

func openFileHistory(cfg HistoryConfig) (HistoryStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("dedup history path is required for file driver")
	}
	return &fileHistory{path: cfg.Path, lockTimeout: cfg.LockTimeout}, nil
}

// Load reads the history file. Missing or corrupt history reads as empty:
// losing the window is recoverable, blocking publication is not.
func (h *fileHistory) Load() ([]Record, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil
	}
	return records, nil
}

func (h *fileHistory) Save(records []Record) error {
	lock, err := store.AcquireLock(h.path, h.lockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return store.AtomicWrite(h.path, data)
}

func (h *fileHistory) Close() error { return nil }
