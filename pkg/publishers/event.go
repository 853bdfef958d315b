package publishers

import (
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
)

// Event is the payload published for every newly stored quote.
type Event struct {
	ID          string             `json:"id"`
	SourceID    string             `json:"source_id"`
	SourceName  string             `json:"source_name"`
	Quote       domain.Quote       `json:"quote"`
	Lines       []domain.QuoteLine `json:"lines"`
	CollectedAt time.Time          `json:"collected_at"`
}

// NewEvent builds an Event with a random id, stamped with the current UTC time.
func NewEvent(sourceID, sourceName string, q domain.Quote, lines []domain.QuoteLine) Event {
	if lines == nil {
		lines = []domain.QuoteLine{}
	}
	return Event{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		SourceName:  sourceName,
		Quote:       q,
		Lines:       lines,
		CollectedAt: time.Now().UTC(),
	}
}

// attributes are attached to queue and topic messages for subscriber filtering.
// Empty values are dropped.
func (e Event) attributes() map[string]string {
	out := make(map[string]string, 3)
	if e.ID != "" {
		out["event_id"] = e.ID
	}
	if e.SourceID != "" {
		out["source_id"] = e.SourceID
	}
	if e.Quote.Type != "" {
		out["quote_type"] = string(e.Quote.Type)
	}
	return out
}
