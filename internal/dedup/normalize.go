package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StrictPolicy()

	// Decorative symbols the publisher sprinkles into messages; they carry
	// no content and would break exact-hash comparisons.
	reDecor      = regexp.MustCompile(`[🎭📅💬📜🔗🤖🕐📰⚖️]`)
	reDate       = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`)
	reClock      = regexp.MustCompile(`\d{2}:\d{2}`)
	reURL        = regexp.MustCompile(`https?://\S+`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Normalize reduces text to the comparable form that gets hashed and
// fuzzy-matched: markup, decorative symbols, embedded dates/times and URLs
// stripped, whitespace collapsed, lowercased. Raw text is never compared.
func Normalize(text string) string {
	clean := stripPolicy.Sanitize(text)
	clean = html.UnescapeString(clean) // bluemonday escapes entities in text nodes
	clean = reDecor.ReplaceAllString(clean, "")
	clean = reDate.ReplaceAllString(clean, "")
	clean = reClock.ReplaceAllString(clean, "")
	clean = reURL.ReplaceAllString(clean, "")
	clean = reWhitespace.ReplaceAllString(clean, " ")
	return strings.ToLower(strings.TrimSpace(clean))
}

// ContentHash is the exact-match digest of the normalized text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
