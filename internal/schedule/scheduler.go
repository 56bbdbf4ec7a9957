// Package schedule fires named daily jobs at fixed wall-clock slots.
//
// The decision core is Tick: given "now", run every job whose slot falls in
// the current tick window and has not fired today. Missed slots stay missed;
// there is no catch-up after downtime, the publication flow tolerates that by
// picking up due items on the next natural slot.
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "tidings/pkg/logx"
)

// Job runs when its slot comes up. Jobs receive the scheduler's base context
// and must honor cancellation themselves.
type Job func(ctx context.Context)

type entry struct {
	name string
	slot int // minutes after midnight
	job  Job
}

// Scheduler owns a set of daily jobs and the at-most-once-per-day bookkeeping
// for firing them. The production driver is a cron interval calling Tick;
// tests call Tick directly with synthetic clocks.
type Scheduler struct {
	mu       sync.Mutex
	loc      *time.Location
	interval time.Duration
	entries  []entry

	day   string
	fired map[string]struct{}

	c   *cron.Cron
	log logx.Logger
}

func New(loc *time.Location, tickInterval time.Duration, log logx.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		loc:      loc,
		interval: tickInterval,
		fired:    map[string]struct{}{},
		log:      log,
	}
}

// AddDaily registers a job at an "HH:MM" slot in the scheduler's location.
// Several jobs may share a slot; each fires independently.
func (s *Scheduler) AddDaily(name, atHHMM string, job Job) error {
	slot, err := ParseSlot(atHHMM)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{name: name, slot: slot, job: job})
	return nil
}

// Tick fires every entry whose slot lies in [slot, slot+interval) around now,
// at most once per calendar day. Jobs run synchronously in registration
// order; a panicking job is logged and does not take the others down.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	now = now.In(s.loc)
	nowMin := now.Hour()*60 + now.Minute()
	window := int(s.interval.Minutes())
	if window < 1 {
		window = 1
	}

	s.mu.Lock()
	if day := now.Format("2006-01-02"); day != s.day {
		s.day = day
		s.fired = map[string]struct{}{}
	}
	var due []entry
	for _, e := range s.entries {
		if nowMin < e.slot || nowMin >= e.slot+window {
			continue
		}
		key := fmt.Sprintf("%s/%02d:%02d", e.name, e.slot/60, e.slot%60)
		if _, done := s.fired[key]; done {
			continue
		}
		s.fired[key] = struct{}{}
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e entry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled job panicked",
				logx.String("job", e.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	s.log.Debug("slot reached", logx.String("job", e.name))
	e.job(ctx)
}

// Start launches the cron driver: one interval entry that ticks the decision
// core with the real clock. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(s.loc))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.Tick(ctx, time.Now()) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("scheduler started",
		logx.String("tz", s.loc.String()),
		logx.Duration("tick", s.interval),
		logx.Int("jobs", len(s.entries)))
	return nil
}

// Stop halts the cron driver and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("scheduler stopped")
	}
}

// ParseSlot converts "HH:MM" to minutes after midnight.
func ParseSlot(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
