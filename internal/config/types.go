package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the single on-disk configuration for the pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	// Timezone is the IANA zone all slots are interpreted in, e.g. "Europe/Moscow".
	Timezone string `json:"timezone,omitempty"`

	Schedule ScheduleConfig `json:"schedule"`
	Storage  StorageConfig  `json:"storage"`
	Dedup    DedupConfig    `json:"dedup,omitempty"`
	Retry    RetryConfig    `json:"retry,omitempty"`
	Telegram TelegramConfig `json:"telegram"`
	Feeds    FeedsConfig    `json:"feeds"`
	Images   ImagesConfig   `json:"images,omitempty"`
	Log      LogConfig      `json:"log,omitempty"`
}

// ScheduleConfig holds the daily timetable.
//
// CollectionTime and PublicationTimes are "HH:MM" in Config.Timezone.
type ScheduleConfig struct {
	CollectionTime   string   `json:"collection_time"`
	PublicationTimes []string `json:"publication_times"`
	TickInterval     string   `json:"tick_interval,omitempty"` // default "1m"
}

type StorageConfig struct {
	Dir           string `json:"dir"`
	LockTimeout   string `json:"lock_timeout,omitempty"`   // default "10s"
	MaxBackups    int    `json:"max_backups,omitempty"`    // default 3
	RetentionDays int    `json:"retention_days,omitempty"` // default 30
}

// DedupConfig controls the duplicate-content window.
//
// Driver values:
//   - "file": JSON history file (default)
//   - "sqlite": SQLite database (requires the sqlite build tag)
type DedupConfig struct {
	Driver      string  `json:"driver,omitempty"`
	Path        string  `json:"path,omitempty"` // default "<storage.dir>/message_history.json"
	MaxEntries  int     `json:"max_entries,omitempty"`
	MaxAge      string  `json:"max_age,omitempty"` // default "168h"
	Similarity  float64 `json:"similarity,omitempty"`
	MinLength   int     `json:"min_length,omitempty"`
	BusyTimeout string  `json:"busy_timeout,omitempty"` // sqlite only
}

type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts,omitempty"`
	BaseWait    string  `json:"base_wait,omitempty"`
	MaxWait     string  `json:"max_wait,omitempty"`
	Jitter      float64 `json:"jitter,omitempty"`
}

type TelegramConfig struct {
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type FeedsConfig struct {
	URLs     []string `json:"urls"`
	Lookback string   `json:"lookback,omitempty"`  // default "24h"
	MaxItems int      `json:"max_items,omitempty"` // default 5
}

type ImagesConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"` // default "<storage.dir>/images"
}

type LogConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // default true
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ApplyDefaults fills zero fields in place. Call after decode, before Validate.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "UTC"
	}
	if c.Schedule.TickInterval == "" {
		c.Schedule.TickInterval = "1m"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data"
	}
	if c.Storage.LockTimeout == "" {
		c.Storage.LockTimeout = "10s"
	}
	if c.Storage.MaxBackups == 0 {
		c.Storage.MaxBackups = 3
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 30
	}
	if c.Dedup.Driver == "" {
		c.Dedup.Driver = "file"
	}
	if c.Dedup.MaxEntries == 0 {
		c.Dedup.MaxEntries = 15
	}
	if c.Dedup.MaxAge == "" {
		c.Dedup.MaxAge = "168h"
	}
	if c.Dedup.Similarity == 0 {
		c.Dedup.Similarity = 0.7
	}
	if c.Dedup.MinLength == 0 {
		c.Dedup.MinLength = 50
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseWait == "" {
		c.Retry.BaseWait = "1s"
	}
	if c.Retry.MaxWait == "" {
		c.Retry.MaxWait = "1m"
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = 0.1
	}
	if c.Telegram.RatePerSec == 0 {
		c.Telegram.RatePerSec = 1
	}
	if c.Feeds.Lookback == "" {
		c.Feeds.Lookback = "24h"
	}
	if c.Feeds.MaxItems == 0 {
		c.Feeds.MaxItems = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects configs the pipeline cannot run with.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if err := validateHHMM("schedule.collection_time", c.Schedule.CollectionTime); err != nil {
		return err
	}
	if len(c.Schedule.PublicationTimes) == 0 {
		return fmt.Errorf("schedule.publication_times: at least one slot is required")
	}
	for i, slot := range c.Schedule.PublicationTimes {
		if err := validateHHMM(fmt.Sprintf("schedule.publication_times[%d]", i), slot); err != nil {
			return err
		}
	}
	if _, err := Duration("schedule.tick_interval", c.Schedule.TickInterval); err != nil {
		return err
	}
	if _, err := Duration("storage.lock_timeout", c.Storage.LockTimeout); err != nil {
		return err
	}
	if _, err := Duration("dedup.max_age", c.Dedup.MaxAge); err != nil {
		return err
	}
	if c.Dedup.Similarity < 0 || c.Dedup.Similarity > 1 {
		return fmt.Errorf("dedup.similarity: must be within [0, 1]")
	}
	if _, err := Duration("retry.base_wait", c.Retry.BaseWait); err != nil {
		return err
	}
	if _, err := Duration("retry.max_wait", c.Retry.MaxWait); err != nil {
		return err
	}
	if _, err := Duration("feeds.lookback", c.Feeds.Lookback); err != nil {
		return err
	}
	return nil
}

func validateHHMM(path, s string) error {
	if _, err := time.Parse("15:04", strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("%s: invalid time %q (want HH:MM)", path, s)
	}
	return nil
}
