// Package collect implements the daily collection job: fetch a raw digest,
// split it into prioritized items, optionally illustrate them, and persist
// the day's batch exactly once.
package collect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tidings/internal/feed"
	"tidings/internal/images"
	"tidings/internal/retry"
	"tidings/internal/store"
	logx "tidings/pkg/logx"
)

// imageWorkers bounds parallel generation; the pool is fully joined before
// any store write so it never races batch mutations.
const imageWorkers = 3

type Config struct {
	Slots         []string // publication timetable, priority order
	MaxItems      int
	ImagesEnabled bool
	Location      *time.Location
}

type Collector struct {
	cfg    Config
	store  *store.Store
	source feed.Source
	gen    images.Generator
	imgDir images.Dir
	exec   *retry.Executor
	log    logx.Logger
	now    func() time.Time
}

func New(cfg Config, st *store.Store, src feed.Source, gen images.Generator, imgDir images.Dir, exec *retry.Executor, log logx.Logger) *Collector {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if gen == nil {
		gen = images.Disabled()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Collector{
		cfg:    cfg,
		store:  st,
		source: src,
		gen:    gen,
		imgDir: imgDir,
		exec:   exec,
		log:    log,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (c *Collector) SetClock(now func() time.Time) { c.now = now }

// Collect runs the collection job for target (zero value = yesterday in the
// configured zone: the morning run covers the previous day). Collection is
// idempotent: an existing non-empty batch for the date returns success
// without re-fetching.
func (c *Collector) Collect(ctx context.Context, target time.Time) error {
	if target.IsZero() {
		target = c.now().In(c.cfg.Location).AddDate(0, 0, -1)
	}

	if b, err := c.store.GetBatch(target); err == nil && b.TotalNews > 0 {
		c.log.Info("batch already collected",
			logx.String("date", store.DateKey(target)), logx.Int("items", b.TotalNews))
		return nil
	} else if err != nil && !errors.Is(err, store.ErrBatchNotFound) {
		return err
	}

	if removed, err := c.store.Sweep(c.now()); err != nil {
		c.log.Warn("retention sweep failed", logx.Err(err))
	} else if removed > 0 {
		c.log.Info("retention sweep", logx.Int("removed", removed))
	}

	var raw string
	err := c.exec.Do(ctx, func(ctx context.Context) error {
		var ferr error
		raw, ferr = c.source.Fetch(ctx)
		return ferr
	})
	if err != nil {
		return fmt.Errorf("fetch content: %w", err)
	}

	items, err := feed.Parse(raw, feed.ParseOptions{
		Date:     target,
		Slots:    c.cfg.Slots,
		MaxItems: c.cfg.MaxItems,
	})
	if err != nil {
		return fmt.Errorf("parse digest: %w", err)
	}

	if c.cfg.ImagesEnabled {
		c.generateImages(ctx, target, items)
	}

	batch := &store.Batch{
		Date:        store.DateKey(target),
		CollectedAt: c.now(),
		News:        items,
	}
	if err := c.store.SaveBatch(target, batch); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}

	c.log.Info("collection complete",
		logx.String("date", batch.Date), logx.Int("items", len(items)))
	for _, it := range items {
		c.log.Debug("collected item",
			logx.Int("priority", it.Priority),
			logx.String("slot", it.ScheduledTime),
			logx.String("id", it.ID))
	}
	return nil
}

// generateImages illustrates items in parallel, at most imageWorkers at a
// time. Failures are per-item and non-fatal: the item just ships text-only.
func (c *Collector) generateImages(ctx context.Context, date time.Time, items []store.Item) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageWorkers)

	for i := range items {
		g.Go(func() error {
			it := &items[i]
			data, err := c.gen.Generate(gctx, it.Content)
			if err != nil {
				c.log.Warn("image generation failed", logx.String("id", it.ID), logx.Err(err))
				return nil
			}
			if len(data) == 0 {
				return nil
			}
			path, err := c.imgDir.PathFor(date, it.ID)
			if err != nil {
				c.log.Warn("image path", logx.String("id", it.ID), logx.Err(err))
				return nil
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				c.log.Warn("image write failed", logx.String("path", path), logx.Err(err))
				return nil
			}
			it.ImagePath = path
			it.ImageGenerated = true
			return nil
		})
	}
	_ = g.Wait() // workers only return nil; Wait is the join point
}
