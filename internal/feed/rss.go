package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"tidings/internal/retry"
	logx "tidings/pkg/logx"
)

// RSSConfig configures the feed-backed content source.
type RSSConfig struct {
	URLs      []string
	Lookback  time.Duration // only entries newer than now-Lookback are used
	UserAgent string
}

// RSS aggregates configured RSS/Atom feeds into a single raw digest.
// Individual feed failures are logged and skipped; the fetch fails only
// when every feed does.
type RSS struct {
	cfg    RSSConfig
	client *http.Client
	parser *gofeed.Parser
	log    logx.Logger
	now    func() time.Time
}

func NewRSS(cfg RSSConfig, log logx.Logger) *RSS {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tidings/1.0"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RSS{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		log:    log,
		now:    time.Now,
	}
}

func (r *RSS) Fetch(ctx context.Context) (string, error) {
	if len(r.cfg.URLs) == 0 {
		return "", retry.Permanent(fmt.Errorf("no feeds configured"))
	}

	cutoff := r.now().Add(-r.cfg.Lookback)
	var blocks []string
	var lastErr error

	for _, url := range r.cfg.URLs {
		entries, err := r.fetchFeed(ctx, url, cutoff)
		if err != nil {
			r.log.Warn("feed fetch failed", logx.String("url", url), logx.Err(err))
			lastErr = err
			continue
		}
		blocks = append(blocks, entries...)
	}

	if len(blocks) == 0 {
		if lastErr != nil {
			return "", lastErr
		}
		return "", &ProviderError{Op: "rss", Err: fmt.Errorf("no entries within lookback window")}
	}
	return strings.Join(blocks, "\n\n---\n\n"), nil
}

func (r *RSS) fetchFeed(ctx context.Context, url string, cutoff time.Time) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "rss", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		perr := &ProviderError{
			Op:        "rss",
			Status:    resp.StatusCode,
			Retryable: retryableStatus(resp.StatusCode),
		}
		if wait := retryAfterHint(resp); wait > 0 {
			return nil, retry.WithRetryAfter(perr, wait)
		}
		return nil, perr
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, &ProviderError{Op: "rss parse", Err: err}
	}

	var blocks []string
	for _, entry := range parsed.Items {
		published := publishedAt(entry)
		if published.Before(cutoff) {
			continue
		}
		blocks = append(blocks, renderEntry(entry))
	}
	return blocks, nil
}

func publishedAt(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return time.Now().UTC()
}

// renderEntry formats one feed entry as a digest block Parse understands.
func renderEntry(entry *gofeed.Item) string {
	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(strings.TrimSpace(entry.Title))
	b.WriteString("\n")

	body := entry.Content
	if strings.TrimSpace(body) == "" {
		body = entry.Description
	}
	b.WriteString(strings.TrimSpace(body))

	if link := strings.TrimSpace(entry.Link); link != "" {
		b.WriteString("\nSource: ")
		b.WriteString(link)
	}
	return b.String()
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfterHint reads a Retry-After header (seconds form only).
func retryAfterHint(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
