package store

import (
	"errors"
	"time"
)

var (
	// ErrBatchNotFound means no readable batch exists for the requested date.
	// Callers decide whether that is expected (first run) or not.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrItemNotFound means the batch exists but has no item with the given id.
	ErrItemNotFound = errors.New("item not found")
)

// Item is a single unit of content with an assigned delivery slot.
type Item struct {
	ID       string   `json:"id"`
	Priority int      `json:"priority"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content"`
	Sources  []string `json:"sources,omitempty"`

	// ScheduledTime is "HH:MM" in the pipeline timezone.
	ScheduledTime string    `json:"scheduled_time"`
	CollectedAt   time.Time `json:"collected_at"`

	Published           bool       `json:"published"`
	PublicationAttempts int        `json:"publication_attempts"`
	PublishedAt         *time.Time `json:"published_at,omitempty"`

	ImagePath      string `json:"image_path,omitempty"`
	ImageGenerated bool   `json:"image_generated"`
}

// Batch is the set of items collected together for one calendar date.
//
// Invariants:
//   - exactly one item per priority
//   - Item.PublishedAt is set iff Item.Published
//   - Item.PublicationAttempts never decreases
type Batch struct {
	Date        string    `json:"date"` // YYYY-MM-DD
	CollectedAt time.Time `json:"collected_at"`
	TotalNews   int       `json:"total_news"`
	News        []Item    `json:"news"`
}

// Item returns a pointer to the item with the given id, or nil.
func (b *Batch) Item(id string) *Item {
	for i := range b.News {
		if b.News[i].ID == id {
			return &b.News[i]
		}
	}
	return nil
}

// Unpublished counts items still waiting for delivery.
func (b *Batch) Unpublished() int {
	n := 0
	for i := range b.News {
		if !b.News[i].Published {
			n++
		}
	}
	return n
}

// DateKey formats a time as the calendar-day key batches are filed under.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }
