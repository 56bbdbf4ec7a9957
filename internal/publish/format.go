package publish

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"tidings/internal/store"
)

var (
	reRefMarker  = regexp.MustCompile(`\s*\[\d+\]`)
	reBoldMarker = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reBlankRuns  = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// FormatItem renders an item as Telegram HTML: a bold headline, the cleaned
// body, and the first source linked from the headline. Leftover markdown
// emphasis and numeric reference markers from upstream generation are
// stripped rather than escaped.
func FormatItem(it *store.Item) string {
	body := cleanBody(it.Content)
	title := strings.TrimSpace(it.Title)

	var b strings.Builder
	if title != "" && !strings.Contains(body, title) {
		head := "<b>" + html.EscapeString(title) + "</b>"
		if len(it.Sources) > 0 {
			head += fmt.Sprintf(" <a href=%q>[источник]</a>", it.Sources[0])
		}
		b.WriteString(head)
		b.WriteString("\n\n")
	}
	b.WriteString(body)

	if len(it.Sources) > 1 {
		b.WriteString("\n\n")
		for i, src := range it.Sources[1:] {
			fmt.Fprintf(&b, "<a href=%q>[%d]</a> ", src, i+2)
		}
	}
	return strings.TrimSpace(b.String())
}

// cleanBody normalizes generated prose: drop [N] reference markers, convert
// **bold** to its plain text, collapse blank-line runs, trim line tails.
func cleanBody(content string) string {
	content = reRefMarker.ReplaceAllString(content, "")
	content = reBoldMarker.ReplaceAllString(content, "$1")
	content = reBlankRuns.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
