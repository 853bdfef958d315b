package extractor

import (
	"regexp"
	"strings"
)

// colorDecl matches the first "color" token and its value up to ';' or end.
// The token is not anchored to a property boundary, so "background-color"
// also matches when it comes first.
var colorDecl = regexp.MustCompile(`(?i)color\s*:([^;]*)`)

// DecodeColor returns the declared color of an inline style attribute, verbatim
// and trimmed. It returns "" when no color is declared.
func DecodeColor(style string) string {
	m := colorDecl.FindStringSubmatch(style)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
