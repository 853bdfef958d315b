package harvester

import (
	"context"
	"time"

	"github.com/samvad-hq/samvad-quote-harvester/pkg/publishers"
)

// PageFetcher downloads a quote page.
type PageFetcher interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (string, error)
}

// EventPublisher publishes stored quotes downstream and reports how many sinks accepted them.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Metrics receives harvest observations.
type Metrics interface {
	ObserveURL(source, outcome string)
	ObserveFetch(source string, elapsed time.Duration, err error)
	ObservePublished(source string, accepted int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveURL(string, string)                 {}
func (nopMetrics) ObserveFetch(string, time.Duration, error) {}
func (nopMetrics) ObservePublished(string, int)              {}
