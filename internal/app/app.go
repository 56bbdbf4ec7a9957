// Package app wires the pipeline together: config, logging, storage,
// duplicate history, Telegram delivery, collection, and the daily schedule.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tidings/internal/collect"
	"tidings/internal/config"
	"tidings/internal/dedup"
	"tidings/internal/feed"
	"tidings/internal/images"
	"tidings/internal/publish"
	"tidings/internal/retry"
	"tidings/internal/schedule"
	"tidings/internal/sink"
	"tidings/internal/store"
	logx "tidings/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	loc  *time.Location

	log  logx.Logger
	logs *logx.Service

	store   *store.Store
	history dedup.HistoryStore
	det     *dedup.Detector

	coll  *collect.Collector
	coord *publish.Coordinator
	sched *schedule.Scheduler
}

// New builds the full pipeline from the config file. Components come up in
// dependency order; any failure aborts startup.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console == nil || *cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, cfg: cfg, loc: loc, log: log, logs: logSvc}
	if err := a.build(); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	lockTimeout, err := config.DurationOrDefault("storage.lock_timeout", cfg.Storage.LockTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	imgRoot := cfg.Images.Dir
	if imgRoot == "" {
		imgRoot = filepath.Join(cfg.Storage.Dir, "images")
	}
	st, err := store.New(store.Config{
		Dir:         cfg.Storage.Dir,
		ImagesDir:   imgRoot,
		LockTimeout: lockTimeout,
		MaxBackups:  cfg.Storage.MaxBackups,
		Retention:   time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour,
	}, a.logs.Logger().With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = st

	if err := a.buildDetector(); err != nil {
		return err
	}

	exec := retry.New(a.retryPolicy(), nil)

	snk, err := sink.NewTelegram(sink.TelegramConfig{
		Token:      cfg.Telegram.Token,
		ChatID:     cfg.Telegram.ChatID,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, a.logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	lookback, err := config.DurationOrDefault("feeds.lookback", cfg.Feeds.Lookback, 24*time.Hour)
	if err != nil {
		return err
	}
	src := feed.NewRSS(feed.RSSConfig{
		URLs:     cfg.Feeds.URLs,
		Lookback: lookback,
	}, a.logs.Logger().With(logx.String("comp", "feeds")))

	a.coll = collect.New(collect.Config{
		Slots:         cfg.Schedule.PublicationTimes,
		MaxItems:      cfg.Feeds.MaxItems,
		ImagesEnabled: cfg.Images.Enabled,
		Location:      a.loc,
	}, st, src, images.Disabled(), images.Dir{Root: imgRoot}, exec,
		a.logs.Logger().With(logx.String("comp", "collect")))

	a.coord = publish.NewCoordinator(st, a.det, snk, exec, a.loc,
		a.logs.Logger().With(logx.String("comp", "publish")))

	tick, err := config.DurationOrDefault("schedule.tick_interval", cfg.Schedule.TickInterval, time.Minute)
	if err != nil {
		return err
	}
	a.sched = schedule.New(a.loc, tick, a.logs.Logger().With(logx.String("comp", "schedule")))
	return a.registerJobs()
}

func (a *App) buildDetector() error {
	cfg := a.cfg

	histPath := cfg.Dedup.Path
	if histPath == "" {
		histPath = filepath.Join(cfg.Storage.Dir, "message_history.json")
	}
	lockTimeout, err := config.DurationOrDefault("storage.lock_timeout", cfg.Storage.LockTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	busy, err := config.Duration("dedup.busy_timeout", cfg.Dedup.BusyTimeout)
	if err != nil {
		return err
	}
	hist, err := dedup.OpenHistory(dedup.HistoryConfig{
		Driver:      cfg.Dedup.Driver,
		Path:        histPath,
		LockTimeout: lockTimeout,
		BusyTimeout: busy,
	}, a.logs.Logger().With(logx.String("comp", "dedup")))
	if err != nil {
		return fmt.Errorf("dedup history: %w", err)
	}
	a.history = hist

	maxAge, err := config.DurationOrDefault("dedup.max_age", cfg.Dedup.MaxAge, 7*24*time.Hour)
	if err != nil {
		return err
	}
	a.det = dedup.NewDetector(dedup.Config{
		MaxEntries: cfg.Dedup.MaxEntries,
		MaxAge:     maxAge,
		Similarity: cfg.Dedup.Similarity,
		MinLength:  cfg.Dedup.MinLength,
	}, hist, a.logs.Logger().With(logx.String("comp", "dedup")))
	return nil
}

func (a *App) retryPolicy() retry.Policy {
	base, _ := config.DurationOrDefault("retry.base_wait", a.cfg.Retry.BaseWait, time.Second)
	max, _ := config.DurationOrDefault("retry.max_wait", a.cfg.Retry.MaxWait, time.Minute)
	return retry.Policy{
		MaxAttempts: a.cfg.Retry.MaxAttempts,
		BaseWait:    base,
		MaxWait:     max,
		Jitter:      a.cfg.Retry.Jitter,
	}
}

func (a *App) registerJobs() error {
	if err := a.sched.AddDaily("collect", a.cfg.Schedule.CollectionTime, func(ctx context.Context) {
		if err := a.coll.Collect(ctx, time.Time{}); err != nil {
			a.log.Error("collection failed", logx.Err(err))
		}
	}); err != nil {
		return err
	}
	for _, slot := range a.cfg.Schedule.PublicationTimes {
		if err := a.sched.AddDaily("publish", slot, func(ctx context.Context) {
			res := a.coord.PublishNext(ctx)
			if res.Status == publish.StatusFailed {
				a.log.Error("publication failed",
					logx.String("item", res.ItemID), logx.Err(res.Err))
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// Collector exposes the collection job for one-shot CLI use.
func (a *App) Collector() *collect.Collector { return a.coll }

// Coordinator exposes the publication flow for one-shot CLI use.
func (a *App) Coordinator() *publish.Coordinator { return a.coord }

// Location is the configured pipeline timezone.
func (a *App) Location() *time.Location { return a.loc }

// Run starts the schedule and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	go a.watchConfig(ctx)
	a.notifySystemd(ctx)

	a.log.Info("pipeline running",
		logx.String("tz", a.loc.String()),
		logx.String("collect_at", a.cfg.Schedule.CollectionTime),
		logx.Any("publish_at", a.cfg.Schedule.PublicationTimes))

	<-ctx.Done()
	a.Close()
	return nil
}

// watchConfig applies live-tunable settings on file change. Schedule and
// storage layout changes need a restart; log level does not.
func (a *App) watchConfig(ctx context.Context) {
	err := a.cfgm.Watch(ctx, a.log, func(cfg *config.Config) {
		a.logs.Apply(logx.Config{
			Level:   cfg.Log.Level,
			Console: cfg.Log.Console == nil || *cfg.Log.Console,
			File: logx.FileConfig{
				Enabled: cfg.Log.File.Enabled,
				Path:    cfg.Log.File.Path,
			},
		})
	})
	if err != nil {
		a.log.Warn("config watch unavailable", logx.Err(err))
	}
}

// notifySystemd reports readiness and keeps the watchdog fed when running
// under systemd Type=notify. A no-op everywhere else.
func (a *App) notifySystemd(ctx context.Context) {
	if ok, _ := daemon.SdNotify(false, daemon.SdNotifyReady); !ok {
		return
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

// Close releases held resources. Safe to call once after Run returns.
func (a *App) Close() {
	a.sched.Stop()
	if a.history != nil {
		_ = a.history.Close()
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("pipeline stopped")
	_ = a.logs.Close()
}
