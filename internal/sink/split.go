package sink

import "strings"

// maxMessageRunes keeps a margin under Telegram's 4096-char limit so parse
// entities near the boundary don't push a chunk over.
const maxMessageRunes = 4000

// captionRunes is Telegram's media caption limit.
const captionRunes = 1024

// SplitMessage cuts text into chunks of at most limit runes, preferring
// paragraph boundaries, then line boundaries, then a hard cut.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageRunes
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := splitPoint(runes, limit)
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func splitPoint(runes []rune, limit int) int {
	window := string(runes[:limit])
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return len([]rune(window[:i])) + 2
	}
	if i := strings.LastIndex(window, "\n"); i > 0 {
		return len([]rune(window[:i])) + 1
	}
	if i := strings.LastIndex(window, " "); i > 0 {
		return len([]rune(window[:i])) + 1
	}
	return limit
}
