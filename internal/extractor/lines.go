package extractor

import (
	"strings"

	"github.com/samvad-hq/samvad-quote-harvester/internal/document"
	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
)

const lineStartTag = "span"

// ParseLines extracts the dialogue lines of the content container in document
// order. Each span starts a line; its message is the text node right after it,
// if any. The result is never nil.
func (e *Engine) ParseLines() []domain.QuoteLine {
	lines := []domain.QuoteLine{}

	p, ok := e.content("lines")
	if !ok {
		return lines
	}

	children := p.Children
	order := 0
	for i, child := range children {
		span, ok := child.(*document.Element)
		if !ok || !span.Is(lineStartTag) {
			continue
		}

		style, _ := span.Attr("style")
		lines = append(lines, domain.QuoteLine{
			Author:  speaker(span),
			Color:   DecodeColor(style),
			Message: messageAfter(children, i),
			Order:   order,
		})
		order++
	}

	return lines
}

// speaker returns the span text without its single trailing colon.
func speaker(span *document.Element) string {
	return strings.TrimSuffix(strings.TrimSpace(span.Text()), ":")
}

// messageAfter reads only the node immediately after index i.
func messageAfter(children []document.Node, i int) string {
	if i+1 >= len(children) {
		return ""
	}
	if text, ok := children[i+1].(document.Text); ok {
		return strings.TrimSpace(text.Content())
	}
	return ""
}
