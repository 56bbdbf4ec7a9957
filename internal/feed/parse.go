package feed

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"tidings/internal/store"
)

var (
	reThink       = regexp.MustCompile(`(?s)<think>.*?</think>`)
	reBlockSplit  = regexp.MustCompile(`(?m)^---$`)
	reSourceLine  = regexp.MustCompile(`(?i)^source:\s*(\S+)`)
	reHeadingLine = regexp.MustCompile(`^##\s*(.+)$`)
)

// ParseOptions shapes how a raw digest becomes a batch.
type ParseOptions struct {
	Date     time.Time // collection target date, used for item ids
	Slots    []string  // publication timetable, "HH:MM", priority order
	MaxItems int       // cap on items per batch
}

// Parse splits a raw content digest into prioritized items. Blocks are
// separated by a bare "---" line; the first "## " heading is the title,
// "Source:" lines accumulate into sources, everything else is content.
// Items get priorities 1..N in digest order and slots from the timetable;
// overflow items share the last slot.
func Parse(raw string, opts ParseOptions) ([]store.Item, error) {
	if opts.MaxItems <= 0 {
		opts.MaxItems = 5
	}
	if len(opts.Slots) == 0 {
		return nil, fmt.Errorf("no publication slots to assign")
	}

	cleaned := reThink.ReplaceAllString(raw, "")
	blocks := reBlockSplit.Split(cleaned, -1)

	now := time.Now().UTC()
	var items []store.Item
	for _, block := range blocks {
		if len(items) == opts.MaxItems {
			break
		}
		title, content, sources := parseBlock(block)
		if content == "" && title == "" {
			continue
		}
		n := len(items) + 1
		slot := opts.Slots[len(opts.Slots)-1]
		if n-1 < len(opts.Slots) {
			slot = opts.Slots[n-1]
		}
		items = append(items, store.Item{
			ID:            fmt.Sprintf("news_%s_%d", opts.Date.Format("20060102"), n),
			Priority:      n,
			Title:         title,
			Content:       content,
			Sources:       sources,
			ScheduledTime: slot,
			CollectedAt:   now,
		})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no items found in digest")
	}
	return items, nil
}

func parseBlock(block string) (title, content string, sources []string) {
	var body []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := reHeadingLine.FindStringSubmatch(line); m != nil && title == "" {
			title = strings.TrimSpace(m[1])
			continue
		}
		if m := reSourceLine.FindStringSubmatch(line); m != nil {
			sources = append(sources, m[1])
			continue
		}
		body = append(body, line)
	}
	return title, strings.Join(body, "\n"), sources
}
