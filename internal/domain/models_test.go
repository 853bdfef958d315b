package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeForContent(t *testing.T) {
	assert.Equal(t, QuoteTypeText, TypeForContent("<span>a:</span> b"))
	assert.Equal(t, QuoteTypeImage, TypeForContent(""))
}

func TestQuoteTypeValid(t *testing.T) {
	for _, typ := range []QuoteType{QuoteTypeText, QuoteTypeImage, QuoteTypeBlog} {
		assert.True(t, typ.Valid(), "%s should be valid", typ)
	}
	assert.False(t, QuoteType("QUOTE_TEXT").Valid())
	assert.False(t, QuoteType("").Valid())
}
