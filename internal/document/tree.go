package document

// Package document loads HTML into a queryable tree of neutral nodes.

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Tree is a parsed HTML document.
type Tree struct {
	doc *goquery.Document
}

// Parse builds a Tree from an HTML string.
func Parse(raw string) (*Tree, error) {
	return ParseReader(strings.NewReader(raw))
}

// ParseReader builds a Tree from an HTML stream.
func ParseReader(r io.Reader) (*Tree, error) {
	if r == nil {
		return nil, fmt.Errorf("parse html: nil reader")
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Tree{doc: doc}, nil
}

// Find returns the first element in document order matching the CSS selector.
// An invalid selector matches nothing.
func (t *Tree) Find(selector string) (*Element, bool) {
	if t == nil || t.doc == nil || strings.TrimSpace(selector) == "" {
		return nil, false
	}
	sel := t.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return fromHTML(sel.Nodes[0]), true
}
