package normalize

import (
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedlens/feedlens/pkg/domain"
)

func TestIdentity(t *testing.T) {
	idRe := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	t.Run("format", func(t *testing.T) {
		id := Identity("reddit", "App crashes on save", "https://example.com/1")
		assert.Regexp(t, idRe, id)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := Identity("reddit", "App crashes on save", "https://example.com/1")
		b := Identity("reddit", "App crashes on save", "https://example.com/1")
		assert.Equal(t, a, b)
	})

	t.Run("cosmetic title differences collapse", func(t *testing.T) {
		a := Identity("reddit", "App crashes on save!", "ref-1")
		b := Identity("reddit", "  APP   Crashes on Save ", "ref-1")
		assert.Equal(t, a, b)
	})

	t.Run("different ref differs", func(t *testing.T) {
		a := Identity("reddit", "App crashes on save", "ref-1")
		b := Identity("reddit", "App crashes on save", "ref-2")
		assert.NotEqual(t, a, b)
	})

	t.Run("different source differs", func(t *testing.T) {
		a := Identity("reddit", "App crashes on save", "ref-1")
		b := Identity("github", "App crashes on save", "ref-1")
		assert.NotEqual(t, a, b)
	})
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		failed   bool
	}{
		{
			name:     "iso8601 with zone",
			input:    "2024-01-15T10:30:00Z",
			expected: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "iso8601 with offset converts to utc",
			input:    "2024-01-15T12:30:00+02:00",
			expected: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "naive datetime assumed utc",
			input:    "2024-01-15 10:30:00",
			expected: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "date only",
			input:    "2024-01-15",
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "unix seconds",
			input:    "1705314600",
			expected: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "empty falls back to sentinel",
			input:    "",
			expected: EpochSentinel,
			failed:   true,
		},
		{
			name:     "garbage falls back to sentinel",
			input:    "not a date at all",
			expected: EpochSentinel,
			failed:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, failed := ParseTimestamp(tt.input)
			assert.Equal(t, tt.failed, failed)
			assert.True(t, tt.expected.Equal(got), "expected %v, got %v", tt.expected, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := New()

	t.Run("strips html from body", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{
			Title:        "Editor freezes",
			Body:         "<p>The editor <b>freezes</b> when saving.</p>",
			CreatedAtRaw: "2024-06-01T00:00:00Z",
			URL:          "https://example.com/a",
		}, "community")
		assert.Equal(t, "The editor freezes when saving.", item.Body)
		assert.False(t, item.RawFields.ParseError)
	})

	t.Run("strips css blocks and mail headers", func(t *testing.T) {
		body := "<style>.x{color:red}</style>\nFrom: someone@example.com\nActual feedback text here"
		item := n.Normalize(domain.RawItem{Title: "t", Body: body, CreatedAtRaw: "2024-06-01"}, "email")
		assert.Equal(t, "Actual feedback text here", item.Body)
	})

	t.Run("drops trailing signoff", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{Title: "t", Body: "Please fix the export button. Thanks", CreatedAtRaw: "2024-06-01"}, "email")
		assert.Equal(t, "Please fix the export button.", item.Body)
	})

	t.Run("corrupt body flags parse error but keeps item", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{
			Title:        "Broken",
			Body:         "<style>a{b:c}</style>",
			CreatedAtRaw: "2024-06-01T00:00:00Z",
		}, "community")
		assert.Empty(t, item.Body)
		assert.True(t, item.RawFields.ParseError)
		assert.NotEmpty(t, item.Identity)
	})

	t.Run("bad timestamp flags parse error and gets sentinel", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{Title: "t", Body: "b", CreatedAtRaw: "yesterday-ish"}, "reddit")
		assert.True(t, item.RawFields.ParseError)
		assert.True(t, EpochSentinel.Equal(item.CreatedAt))
	})

	t.Run("identity uses native id when url empty", func(t *testing.T) {
		a := n.Normalize(domain.RawItem{Title: "same title", NativeID: "42", CreatedAtRaw: "2024-06-01"}, "github")
		b := n.Normalize(domain.RawItem{Title: "same title", NativeID: "43", CreatedAtRaw: "2024-06-01"}, "github")
		assert.NotEqual(t, a.Identity, b.Identity)
	})

	t.Run("title never mutates beyond whitespace", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{Title: "  Feature:  Export to CSV!  ", CreatedAtRaw: "2024-06-01"}, "community")
		assert.Equal(t, "Feature: Export to CSV!", item.Title)
	})
}

func TestNormalizer_Gist(t *testing.T) {
	n := New()

	t.Run("short text passes through", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{Title: "t", Body: "short body here", CreatedAtRaw: "2024-06-01"}, "s")
		assert.Equal(t, "short body here", item.Gist)
	})

	t.Run("long text truncates with ellipsis", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{
			Title:        "t",
			Body:         "one two three four five six seven eight nine ten eleven twelve",
			CreatedAtRaw: "2024-06-01",
		}, "s")
		assert.Equal(t, "one two three four five six seven eight nine ten...", item.Gist)
	})

	t.Run("falls back to title when body empty", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{Title: "Only a title", CreatedAtRaw: "2024-06-01"}, "s")
		assert.Equal(t, "Only a title", item.Gist)
	})

	t.Run("no content placeholder", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{CreatedAtRaw: "2024-06-01"}, "s")
		assert.Equal(t, "No content", item.Gist)
	})

	t.Run("byte cap lands on a rune boundary", func(t *testing.T) {
		item := n.Normalize(domain.RawItem{Title: "t", Body: strings.Repeat("é", 80), CreatedAtRaw: "2024-06-01"}, "s")
		assert.True(t, utf8.ValidString(item.Gist))
		assert.True(t, strings.HasSuffix(item.Gist, "..."))
		assert.LessOrEqual(t, len(item.Gist), 150)
	})
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "Hello World", "hello world"},
		{"punctuation stripped", "Crash! On, Save?", "crash on save"},
		{"whitespace collapsed", "  too   many   spaces  ", "too many spaces"},
		{"unicode letters kept", "Données perdues", "données perdues"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.input))
		})
	}
}

func TestEpochSentinelOrdering(t *testing.T) {
	n := New()
	bad := n.Normalize(domain.RawItem{Title: "bad ts", CreatedAtRaw: "???"}, "s")
	good := n.Normalize(domain.RawItem{Title: "good ts", CreatedAtRaw: "2000-01-01T00:00:00Z"}, "s")
	require.True(t, bad.CreatedAt.Before(good.CreatedAt), "sentinel must sort oldest")
}
