package domain

// Domain contains core models shared by the extractor, storage and publishers.

// QuoteType classifies how a quote's conversation is carried on the page.
type QuoteType string

const (
	QuoteTypeText  QuoteType = "TEXT"
	QuoteTypeImage QuoteType = "IMAGE"
	// QuoteTypeBlog is reserved for blog posts; extraction never assigns it.
	QuoteTypeBlog QuoteType = "BLOG"
)

// Valid reports whether t is one of the known quote types.
func (t QuoteType) Valid() bool {
	switch t {
	case QuoteTypeText, QuoteTypeImage, QuoteTypeBlog:
		return true
	default:
		return false
	}
}

// TypeForContent derives the quote type from its cleaned raw content.
func TypeForContent(rawContent string) QuoteType {
	if rawContent != "" {
		return QuoteTypeText
	}
	return QuoteTypeImage
}

// Quote is the metadata of one archived conversation.
// ID and URL are never set by extraction; storage and the harvester fill them.
type Quote struct {
	ID         uint64    `json:"id,omitempty"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	URL        string    `json:"url"`
	RawContent string    `json:"raw_content"`
	PostedAt   string    `json:"posted_at"`
	ScrapedAt  string    `json:"scraped_at"`
	Type       QuoteType `json:"type"`
}

// QuoteLine is one speaker-attributed message of a quote.
type QuoteLine struct {
	ID      uint64 `json:"id,omitempty"`
	QuoteID uint64 `json:"quote_id,omitempty"`
	Author  string `json:"author"`
	Color   string `json:"color"`
	Message string `json:"message"`
	Order   int    `json:"order"`
}
