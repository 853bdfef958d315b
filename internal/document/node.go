package document

import (
	"strings"

	"golang.org/x/net/html"
)

// Node is either an *Element or a Text. The set is closed.
type Node interface {
	isNode()
}

// Text is a run of character data between elements.
type Text string

func (Text) isNode() {}

// Content returns the raw character data.
func (t Text) Content() string { return string(t) }

// Attribute is a single name/value pair; element attributes keep source order.
type Attribute struct {
	Name  string
	Value string
}

// Element is a tag with its attributes and ordered child nodes.
type Element struct {
	Tag      string
	Attrs    []Attribute
	Children []Node
}

func (*Element) isNode() {}

// NewElement builds an element from its parts.
func NewElement(tag string, attrs []Attribute, children ...Node) *Element {
	return &Element{Tag: strings.ToLower(tag), Attrs: attrs, Children: children}
}

// Is reports whether the element's tag equals tag, ignoring case.
func (e *Element) Is(tag string) bool {
	return e != nil && strings.EqualFold(e.Tag, tag)
}

// Attr returns the value of the first attribute called name.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, a := range e.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// Text concatenates the character data of every descendant in document order.
func (e *Element) Text() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	writeText(&b, e)
	return b.String()
}

func writeText(b *strings.Builder, e *Element) {
	for _, c := range e.Children {
		switch n := c.(type) {
		case Text:
			b.WriteString(string(n))
		case *Element:
			writeText(b, n)
		}
	}
}

// InnerHTML serializes the element's children as HTML markup close to the
// source: text keeps quotes and apostrophes, and void elements render as <br>.
// Entity references other than &amp;, &lt; and &gt; come back decoded.
func (e *Element) InnerHTML() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	writeChildren(&b, e)
	return b.String()
}

// voidElements never have children or a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// rawTextElements hold character data that is written without escaping.
var rawTextElements = map[string]bool{
	"script": true, "style": true, "xmp": true, "iframe": true, "noembed": true, "noframes": true,
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")
)

func writeChildren(b *strings.Builder, e *Element) {
	raw := rawTextElements[e.Tag]
	for _, c := range e.Children {
		switch n := c.(type) {
		case Text:
			if raw {
				b.WriteString(string(n))
			} else {
				textEscaper.WriteString(b, string(n))
			}
		case *Element:
			writeElement(b, n)
		}
	}
}

func writeElement(b *strings.Builder, e *Element) {
	if e == nil {
		return
	}
	b.WriteByte('<')
	b.WriteString(e.Tag)
	for _, a := range e.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		attrEscaper.WriteString(b, a.Value)
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if voidElements[e.Tag] {
		return
	}
	writeChildren(b, e)
	b.WriteString("</")
	b.WriteString(e.Tag)
	b.WriteByte('>')
}

// fromHTML converts a parsed element subtree into neutral nodes.
// Comments, doctypes and other non-content nodes are dropped.
func fromHTML(n *html.Node) *Element {
	el := &Element{Tag: strings.ToLower(n.Data)}
	if len(n.Attr) > 0 {
		el.Attrs = make([]Attribute, 0, len(n.Attr))
		for _, a := range n.Attr {
			el.Attrs = append(el.Attrs, Attribute{Name: a.Key, Value: a.Val})
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el.Children = append(el.Children, fromHTML(c))
		case html.TextNode:
			el.Children = append(el.Children, Text(c.Data))
		}
	}
	return el
}
