package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tidings/pkg/logx"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML)
	_, err := m.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx, logx.Nop(), func(cfg *Config) {
			select {
			case changed <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(minimalYAML, `collection_time: "08:00"`, `collection_time: "07:30"`, 1)
	require.NoError(t, os.WriteFile(m.Path(), []byte(updated), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "07:30", cfg.Schedule.CollectionTime)
		assert.Equal(t, "07:30", m.Get().Schedule.CollectionTime)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}

	cancel()
	<-done
}

func TestWatch_KeepsLastGoodConfigOnParseError(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML)
	_, err := m.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	go func() {
		_ = m.Watch(ctx, logx.Nop(), func(*Config) {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(m.Path(), []byte("schedule: [broken"), 0o644))
	time.Sleep(600 * time.Millisecond) // past the debounce

	select {
	case <-reloaded:
		t.Fatal("invalid config must not be committed")
	default:
	}
	assert.Equal(t, "08:00", m.Get().Schedule.CollectionTime)
}
