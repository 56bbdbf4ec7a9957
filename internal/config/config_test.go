package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
schedule:
  collection_time: "08:00"
  publication_times: ["09:00", "11:00"]
storage:
  dir: "./data"
telegram:
  token: "123:abc"
  chat_id: -100123
feeds:
  urls: ["https://example.com/rss"]
`

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewManager(path)
}

func TestLoad_MinimalYAMLWithDefaults(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML)

	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "1m", cfg.Schedule.TickInterval)
	assert.Equal(t, "10s", cfg.Storage.LockTimeout)
	assert.Equal(t, 3, cfg.Storage.MaxBackups)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)
	assert.Equal(t, "file", cfg.Dedup.Driver)
	assert.Equal(t, 15, cfg.Dedup.MaxEntries)
	assert.Equal(t, 0.7, cfg.Dedup.Similarity)
	assert.Equal(t, 50, cfg.Dedup.MinLength)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 0.1, cfg.Retry.Jitter)
	assert.Equal(t, 1, cfg.Telegram.RatePerSec)
	assert.Equal(t, 5, cfg.Feeds.MaxItems)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Same(t, cfg, m.Get())
}

func TestLoad_JSONFormat(t *testing.T) {
	m := writeConfig(t, "config.json", `{
  "schedule": {"collection_time": "08:00", "publication_times": ["09:00"]},
  "storage": {"dir": "./data"},
  "telegram": {"token": "123:abc", "chat_id": -100123},
  "feeds": {"urls": ["https://example.com/rss"]}
}`)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "08:00", cfg.Schedule.CollectionTime)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML+"\nunknown_key: true\n")

	_, err := m.Load()
	assert.Error(t, err)
}

func TestLoad_BadTimezone(t *testing.T) {
	m := writeConfig(t, "config.yaml", "timezone: \"Mars/Olympus\"\n"+minimalYAML)

	_, err := m.Load()
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML+"\nretry:\n  base_wait: \"soon\"\n")

	_, err := m.Load()
	assert.Error(t, err)
}

func TestValidate_SlotFormats(t *testing.T) {
	cfg := &Config{
		Schedule: ScheduleConfig{
			CollectionTime:   "08:00",
			PublicationTimes: []string{"09:00", "25:00"},
		},
	}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())

	cfg.Schedule.PublicationTimes = []string{"09:00"}
	assert.NoError(t, cfg.Validate())

	cfg.Schedule.PublicationTimes = nil
	assert.Error(t, cfg.Validate())
}

func TestDuration(t *testing.T) {
	d, err := Duration("x", "90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = Duration("x", "")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = Duration("x", "-5s")
	assert.Error(t, err)

	_, err = Duration("x", "fast")
	assert.Error(t, err)
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("x", "", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	d, err = DurationOrDefault("x", "3s", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
}
