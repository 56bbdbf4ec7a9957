//go:build sqlite

package dedup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "tidings/pkg/logx"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS message_history (
	position  INTEGER NOT NULL,
	hash      TEXT    NOT NULL,
	ts        TIMESTAMP NOT NULL,
	preview   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_position ON message_history(position);
`

type sqliteHistory struct {
	db  *sqlx.DB
	log logx.Logger
}

func openSQLiteHistory(cfg HistoryConfig, log logx.Logger) (HistoryStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("dedup history path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteHistory{db: db, log: log}, nil
}

func (h *sqliteHistory) Load() ([]Record, error) {
	var rows []struct {
		Hash    string `db:"hash"`
		TS      string `db:"ts"`
		Preview string `db:"preview"`
	}
	err := h.db.Select(&rows, "SELECT hash, ts, preview FROM message_history ORDER BY position ASC")
	if err != nil {
		return nil, nil // treat unreadable history as empty, same as the file driver
	}
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec := Record{Hash: r.Hash, Preview: r.Preview}
		_ = rec.Timestamp.UnmarshalText([]byte(r.TS))
		records = append(records, rec)
	}
	return records, nil
}

// Save replaces the whole window. The window is bounded at a handful of
// rows, so a transactional rewrite is cheaper than diffing.
func (h *sqliteHistory) Save(records []Record) error {
	tx, err := h.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM message_history"); err != nil {
		return err
	}
	for i, r := range records {
		ts, err := r.Timestamp.MarshalText()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO message_history (position, hash, ts, preview) VALUES (?, ?, ?, ?)",
			i, r.Hash, string(ts), r.Preview,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (h *sqliteHistory) Close() error { return h.db.Close() }
