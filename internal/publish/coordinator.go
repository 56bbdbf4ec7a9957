// Package publish decides which collected item goes out next and drives the
// delivery attempt end to end: slot gating, duplicate suppression, retried
// sending, and the status bookkeeping that makes all of it idempotent.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"tidings/internal/dedup"
	"tidings/internal/retry"
	"tidings/internal/sink"
	"tidings/internal/store"
	logx "tidings/pkg/logx"
)

// Status classifies the outcome of a publication pass.
type Status string

const (
	StatusDelivered        Status = "delivered"
	StatusSkippedDuplicate Status = "skipped_duplicate"
	StatusNoItemReady      Status = "no_item_ready"
	StatusFailed           Status = "failed"
)

// Result reports what a publication pass did.
type Result struct {
	Status    Status
	Date      string // batch date, YYYY-MM-DD
	ItemID    string
	Priority  int
	Attempts  int // attempts recorded for the item after this pass
	Remaining int // unpublished items left in the batch
	Err       error
}

// Coordinator owns the publication flow for due items. All state lives in the
// item store; the coordinator itself can be re-created freely.
type Coordinator struct {
	store *store.Store
	det   *dedup.Detector
	sink  sink.Sink
	exec  *retry.Executor
	loc   *time.Location
	log   logx.Logger
	now   func() time.Time
}

func NewCoordinator(st *store.Store, det *dedup.Detector, snk sink.Sink, exec *retry.Executor, loc *time.Location, log logx.Logger) *Coordinator {
	if loc == nil {
		loc = time.Local
	}
	if exec == nil {
		exec = retry.New(retry.DefaultPolicy(), nil)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{store: st, det: det, sink: snk, exec: exec, loc: loc, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// candidate pairs an item with the batch date it was read from.
type candidate struct {
	date time.Time
	item store.Item
	left int // unpublished items in the batch, including this one
}

// PublishNext publishes the highest-priority item whose slot has passed, or
// reports that nothing is due. At most one item goes out per call.
func (c *Coordinator) PublishNext(ctx context.Context) Result {
	cand, err := c.nextDue()
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}
	if cand == nil {
		return Result{Status: StatusNoItemReady}
	}
	return c.publish(ctx, cand, true)
}

// nextDue scans batches newest first for the best unpublished item whose
// scheduled slot is at or before the current wall-clock time.
func (c *Coordinator) nextDue() (*candidate, error) {
	dates, err := c.store.Dates()
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	nowHM := c.now().In(c.loc).Format("15:04")

	for _, d := range dates {
		b, err := c.store.GetBatch(d)
		if err != nil {
			if errors.Is(err, store.ErrBatchNotFound) {
				continue
			}
			return nil, err
		}
		if b.Unpublished() == 0 {
			continue
		}
		// Newest unfinished batch wins; anything older waits behind it.
		var due []store.Item
		for _, it := range b.News {
			if it.Published || it.ScheduledTime == "" {
				continue
			}
			if it.ScheduledTime <= nowHM {
				due = append(due, it)
			}
		}
		if len(due) == 0 {
			return nil, nil
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].Priority != due[j].Priority {
				return due[i].Priority < due[j].Priority
			}
			return due[i].ScheduledTime < due[j].ScheduledTime
		})
		return &candidate{date: d, item: due[0], left: b.Unpublished()}, nil
	}
	return nil, nil
}

// ForcePublish sends the item with the given priority regardless of its slot.
// The duplicate check is skipped: forcing is an explicit operator decision.
func (c *Coordinator) ForcePublish(ctx context.Context, date time.Time, priority int) Result {
	b, err := c.store.GetBatch(date)
	if err != nil {
		return Result{Status: StatusFailed, Date: store.DateKey(date), Err: err}
	}
	for _, it := range b.News {
		if it.Priority != priority {
			continue
		}
		if it.Published {
			return Result{
				Status: StatusFailed, Date: b.Date, ItemID: it.ID, Priority: priority,
				Err: fmt.Errorf("item %s already published", it.ID),
			}
		}
		return c.publish(ctx, &candidate{date: date, item: it, left: b.Unpublished()}, false)
	}
	return Result{
		Status: StatusFailed, Date: b.Date, Priority: priority,
		Err: fmt.Errorf("no item with priority %d in %s", priority, b.Date),
	}
}

func (c *Coordinator) publish(ctx context.Context, cand *candidate, checkDup bool) Result {
	it := cand.item
	log := c.log.With(
		logx.String("item", it.ID),
		logx.Int("priority", it.Priority),
		logx.String("slot", it.ScheduledTime),
	)
	res := Result{
		Date: store.DateKey(cand.date), ItemID: it.ID,
		Priority: it.Priority, Attempts: it.PublicationAttempts,
		Remaining: cand.left,
	}

	text := FormatItem(&it)

	if checkDup && c.det != nil && c.det.IsDuplicate(text) {
		// Suppressed items are marked published so they never come up again.
		// The pass still counts: the slot was consumed, nothing was sent.
		now := c.now().In(c.loc)
		if err := c.store.UpdateItem(cand.date, it.ID, func(m *store.Item) error {
			m.Published = true
			m.PublicationAttempts++
			m.PublishedAt = &now
			return nil
		}); err != nil {
			res.Status, res.Err = StatusFailed, err
			return res
		}
		log.Info("duplicate item suppressed")
		res.Status = StatusSkippedDuplicate
		res.Attempts = it.PublicationAttempts + 1
		res.Remaining--
		return res
	}

	msg := sink.Message{Text: text, Image: c.loadImage(&it, log)}

	log.Info("publishing item")
	sendErr := c.exec.Do(ctx, func(ctx context.Context) error {
		return c.sink.Send(ctx, msg)
	})

	now := c.now().In(c.loc)
	if sendErr != nil {
		if err := c.store.UpdateItem(cand.date, it.ID, func(m *store.Item) error {
			m.PublicationAttempts++
			return nil
		}); err != nil {
			log.Error("attempt count update failed", logx.Err(err))
		}
		log.Error("publication failed", logx.Err(sendErr), logx.Int("attempts", it.PublicationAttempts+1))
		res.Status, res.Err, res.Attempts = StatusFailed, sendErr, it.PublicationAttempts+1
		return res
	}

	if err := c.store.UpdateItem(cand.date, it.ID, func(m *store.Item) error {
		m.Published = true
		m.PublicationAttempts++
		m.PublishedAt = &now
		return nil
	}); err != nil {
		// Delivered but not recorded: surface loudly, the next pass would
		// otherwise send it again.
		log.Error("delivered item could not be marked published", logx.Err(err))
		res.Status, res.Err = StatusFailed, err
		return res
	}
	if c.det != nil {
		if err := c.det.Record(text); err != nil {
			log.Warn("history update failed", logx.Err(err))
		}
	}

	log.Info("item published", logx.Int("remaining", cand.left-1))
	res.Status, res.Attempts, res.Remaining = StatusDelivered, it.PublicationAttempts+1, cand.left-1
	return res
}

// loadImage reads the pre-generated image for an item, if there is one.
// Missing or unreadable images degrade to text-only delivery.
func (c *Coordinator) loadImage(it *store.Item, log logx.Logger) []byte {
	if !it.ImageGenerated || it.ImagePath == "" {
		return nil
	}
	data, err := os.ReadFile(it.ImagePath)
	if err != nil {
		log.Warn("image unreadable, sending text only",
			logx.String("path", it.ImagePath), logx.Err(err))
		return nil
	}
	return data
}

// ItemStatus is one row of a batch report.
type ItemStatus struct {
	ID            string     `json:"id"`
	Priority      int        `json:"priority"`
	ScheduledTime string     `json:"scheduled_time"`
	Published     bool       `json:"published"`
	Attempts      int        `json:"attempts"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Title         string     `json:"title,omitempty"`
}

// Report summarizes publication progress for one batch date.
type Report struct {
	Date        string       `json:"date"`
	Exists      bool         `json:"exists"`
	Total       int          `json:"total"`
	Published   int          `json:"published"`
	Unpublished int          `json:"unpublished"`
	CollectedAt time.Time    `json:"collected_at,omitzero"`
	Items       []ItemStatus `json:"items,omitempty"`
}

// StatusFor builds a report for the given batch date. A missing batch yields
// Exists=false, not an error.
func (c *Coordinator) StatusFor(date time.Time) (Report, error) {
	rep := Report{Date: store.DateKey(date)}
	b, err := c.store.GetBatch(date)
	if err != nil {
		if errors.Is(err, store.ErrBatchNotFound) {
			return rep, nil
		}
		return rep, err
	}
	rep.Exists = true
	rep.Total = len(b.News)
	rep.Unpublished = b.Unpublished()
	rep.Published = rep.Total - rep.Unpublished
	rep.CollectedAt = b.CollectedAt
	for _, it := range b.News {
		rep.Items = append(rep.Items, ItemStatus{
			ID: it.ID, Priority: it.Priority, ScheduledTime: it.ScheduledTime,
			Published: it.Published, Attempts: it.PublicationAttempts,
			PublishedAt: it.PublishedAt, Title: truncate(it.Title, 50),
		})
	}
	sort.Slice(rep.Items, func(i, j int) bool { return rep.Items[i].Priority < rep.Items[j].Priority })
	return rep, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
