package extractor

import (
	"strings"
	"time"

	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
)

// Selectors of the canonical quote page layout.
const (
	SelectorTitle    = "main h1"
	SelectorAuthor   = ".wp-block-post-author-name a"
	SelectorPostDate = "main time"
	SelectorContent  = "main .entry-content p"

	postDateAttr = "datetime"
)

// isoLayout renders instants the way quote records store them: UTC, milliseconds.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// dateLayouts are tried in order against the datetime attribute.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseMetadata extracts the quote-level record. URL and ID stay empty.
func (e *Engine) ParseMetadata() domain.Quote {
	q := domain.Quote{
		Title:      e.extractTitle(),
		Author:     e.extractAuthor(),
		RawContent: e.extractContentRaw(),
		PostedAt:   e.extractPostDate(),
		ScrapedAt:  FormatISO(e.now()),
	}
	q.Type = domain.TypeForContent(q.RawContent)
	return q
}

func (e *Engine) extractTitle() string {
	return e.trimmedText("title", SelectorTitle)
}

func (e *Engine) extractAuthor() string {
	return e.trimmedText("author", SelectorAuthor)
}

func (e *Engine) trimmedText(field, selector string) string {
	el, ok := e.find(selector)
	if !ok {
		e.missing(field, selector, "")
		return ""
	}
	text := strings.TrimSpace(el.Text())
	if text == "" {
		e.missing(field, selector, "element is empty")
	}
	return text
}

func (e *Engine) extractPostDate() string {
	el, ok := e.find(SelectorPostDate)
	if !ok {
		e.missing("posted_at", SelectorPostDate, "")
		return ""
	}
	raw, ok := el.Attr(postDateAttr)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		e.missing("posted_at", SelectorPostDate, "datetime attribute absent")
		return ""
	}
	t, ok := parseDate(raw)
	if !ok {
		e.reporter.Report(Diagnostic{
			Kind:     KindUnparsableDate,
			Field:    "posted_at",
			Selector: SelectorPostDate,
			Detail:   raw,
		})
		return ""
	}
	return FormatISO(t)
}

func (e *Engine) extractContentRaw() string {
	el, ok := e.content("raw_content")
	if !ok {
		return ""
	}
	return collapseSpaces(el.InnerHTML())
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatISO renders t as an ISO-8601 UTC string with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// collapseSpaces replaces every whitespace run with one space and trims the ends.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
