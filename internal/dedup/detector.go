// Package dedup suppresses near-duplicate content against a rolling history
// of recently published messages.
package dedup

import (
	"time"

	logx "tidings/pkg/logx"
)

const previewRunes = 100

// Config bounds the duplicate window and tunes the fuzzy check.
type Config struct {
	MaxEntries int           // max records kept (default 15)
	MaxAge     time.Duration // max record age (default 7 days)
	Similarity float64       // fuzzy threshold (default 0.7)
	MinLength  int           // skip fuzzy check below this many runes (default 50)
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 15
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7 * 24 * time.Hour
	}
	if c.Similarity <= 0 {
		c.Similarity = 0.7
	}
	if c.MinLength <= 0 {
		c.MinLength = 50
	}
	return c
}

// Detector answers "have we published something like this recently?".
// It owns the history window; persistence goes through a HistoryStore.
type Detector struct {
	cfg  Config
	hist HistoryStore
	log  logx.Logger
	now  func() time.Time
}

func NewDetector(cfg Config, hist HistoryStore, log logx.Logger) *Detector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{cfg: cfg.withDefaults(), hist: hist, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

// IsDuplicate checks text against the window: exact digest match first, then
// a similarity ratio against each retained preview when both sides are long
// enough for the comparison to mean anything. A history read failure is
// logged and treated as "no duplicates" so delivery is never blocked by a
// damaged history file.
func (d *Detector) IsDuplicate(text string) bool {
	records, err := d.hist.Load()
	if err != nil {
		d.log.Warn("history unreadable, skipping duplicate check", logx.Err(err))
		return false
	}
	if len(records) == 0 {
		return false
	}

	hash := ContentHash(text)
	for _, r := range records {
		if r.Hash == hash {
			d.log.Warn("exact duplicate suppressed",
				logx.String("preview", r.Preview), logx.Time("previous", r.Timestamp))
			return true
		}
	}

	normalized := Normalize(text)
	if runeLen(normalized) < d.cfg.MinLength {
		return false
	}
	for _, r := range records {
		if runeLen(r.Preview) < d.cfg.MinLength {
			continue
		}
		ratio := Similarity(normalized, r.Preview)
		if ratio >= d.cfg.Similarity {
			d.log.Warn("similar content suppressed",
				logx.Float64("similarity", ratio),
				logx.Float64("threshold", d.cfg.Similarity),
				logx.Time("previous", r.Timestamp))
			return true
		}
	}
	return false
}

// Record inserts text at the head of the history (newest first) and prunes
// the window by both count and age.
func (d *Detector) Record(text string) error {
	records, err := d.hist.Load()
	if err != nil {
		records = nil
	}

	rec := Record{
		Hash:      ContentHash(text),
		Timestamp: d.now(),
		Preview:   truncateRunes(Normalize(text), previewRunes),
	}
	records = append([]Record{rec}, records...)
	records = d.prune(records)
	return d.hist.Save(records)
}

// prune drops records past MaxAge, then trims to MaxEntries. Input is
// newest-first, so trimming the tail evicts oldest-first.
func (d *Detector) prune(records []Record) []Record {
	cutoff := d.now().Add(-d.cfg.MaxAge)
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	if len(kept) > d.cfg.MaxEntries {
		kept = kept[:d.cfg.MaxEntries]
	}
	return kept
}

func runeLen(s string) int { return len([]rune(s)) }

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
