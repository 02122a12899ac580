package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"

	"github.com/feedlens/feedlens/pkg/domain"
)

// EpochSentinel is assigned to items with unparseable timestamps so they
// always sort oldest. Never zero-value time, never nil.
var EpochSentinel = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	wsRe        = regexp.MustCompile(`\s+`)
	punctRe     = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	cssBlockRe  = regexp.MustCompile(`(?s)<style[^>]*>.*?</style>`)
	cssInlineRe = regexp.MustCompile(`(?i)\b[\w.#-]+\s*\{[^}]*\}`)
	mailHdrRe   = regexp.MustCompile(`(?im)^(from|sent|to|cc|subject):\s.*$`)
	signoffRe   = regexp.MustCompile(`(?i)\s+(thanks|thank you|regards|best)[.,!]?\s*$`)
)

// Normalizer converts raw source items into normalized ones. Stateless and
// safe for concurrent use.
type Normalizer struct {
	sanitizer *bluemonday.Policy
	gistWords int
	gistMax   int
}

// New creates a normalizer with default gist sizing
func New() *Normalizer {
	return &Normalizer{
		sanitizer: bluemonday.StrictPolicy(),
		gistWords: 10,
		gistMax:   150,
	}
}

// Normalize converts a raw item into a NormalizedItem. It never fails: on
// unrecoverable corruption the result carries an empty body and a
// RawFields.ParseError flag, the item is never dropped.
func (n *Normalizer) Normalize(raw domain.RawItem, source string) domain.NormalizedItem {
	title := CollapseWhitespace(raw.Title)
	body, parseErr := n.cleanBody(raw.Body)

	createdAt, tsErr := ParseTimestamp(raw.CreatedAtRaw)
	item := domain.NormalizedItem{
		Identity:  Identity(source, raw.Title, firstNonEmpty(raw.URL, raw.NativeID)),
		Source:    source,
		Title:     title,
		Gist:      n.gist(firstNonEmpty(body, title)),
		Body:      body,
		Author:    CollapseWhitespace(raw.Author),
		CreatedAt: createdAt,
		URL:       raw.URL,
		RawFields: domain.RawFields{
			NativeID:   raw.NativeID,
			ParseError: parseErr || tsErr,
			Extra:      raw.Extra,
		},
	}
	return item
}

// cleanBody strips markup, CSS blocks and email-thread artifacts and collapses
// whitespace. Reports true when the input was corrupt enough to yield nothing
// from a non-empty source.
func (n *Normalizer) cleanBody(body string) (cleaned string, corrupt bool) {
	if body == "" {
		return "", false
	}

	s := cssBlockRe.ReplaceAllString(body, " ")
	s = n.sanitizer.Sanitize(s)
	s = html.UnescapeString(s)
	s = cssInlineRe.ReplaceAllString(s, " ")
	s = mailHdrRe.ReplaceAllString(s, " ")
	s = CollapseWhitespace(s)
	s = signoffRe.ReplaceAllString(s, "")

	if s == "" {
		return "", true
	}
	return s, false
}

// gist builds a short display summary: first words of the text, capped and
// ellipsized. The original title stays untouched, the gist is derived data.
func (n *Normalizer) gist(text string) string {
	if text == "" {
		return "No content"
	}
	words := strings.Fields(text)
	g := strings.Join(words[:min(len(words), n.gistWords)], " ")
	if len(words) > n.gistWords {
		g += "..."
	}
	if len(g) > n.gistMax {
		cut := n.gistMax - 3
		for cut > 0 && !utf8.RuneStart(g[cut]) { // never cut mid-rune
			cut--
		}
		g = g[:cut] + "..."
	}
	return g
}

// ParseTimestamp accepts ISO-8601 with or without zone suffix and date-only
// strings, normalizing everything to UTC. Unparseable input falls back to
// EpochSentinel and reports failure, never an error.
func ParseTimestamp(s string) (t time.Time, failed bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EpochSentinel, true
	}
	parsed, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return EpochSentinel, true
	}
	return parsed.UTC(), false
}

// Identity computes the stable content-hash key for an item. Identical
// (source, title, ref) inputs produce the same identity regardless of which
// run observed them; the hash is formatted as a UUID-like string.
func Identity(source, title, ref string) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(source)),
		NormalizeTitle(title),
		strings.TrimSpace(ref),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	h := hex.EncodeToString(sum[:])
	return h[:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:32]
}

// NormalizeTitle lowercases, trims, collapses whitespace and drops punctuation
// so cosmetic differences never split identities or dedup groups
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = punctRe.ReplaceAllString(t, "")
	return CollapseWhitespace(t)
}

// CollapseWhitespace trims and folds any whitespace run into a single space
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
