package publishers

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Builder creates a Publisher from a config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)

// Builders maps publisher types to their constructors.
type Builders map[string]Builder

// DefaultBuilders knows every built-in sink.
func DefaultBuilders() Builders {
	return Builders{
		TypeHTTP:      newHTTPPublisher,
		TypeSQS:       newSQSPublisher,
		TypeSNS:       newSNSPublisher,
		TypeGCPPubSub: newGCPPubSubPublisher,
	}
}

// Types lists the registered publisher types, sorted.
func (b Builders) Types() []string {
	return slices.Sorted(maps.Keys(b))
}

// Build constructs the publisher declared by cfg.
func (b Builders) Build(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, fmt.Errorf("publisher %q has no type configured", cfg.ID)
	}
	build, ok := b[typ]
	if !ok || build == nil {
		return nil, fmt.Errorf("publisher %q: unknown type %q (known: %s)", cfg.ID, cfg.Type, strings.Join(b.Types(), ", "))
	}
	pub, err := build(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build %s publisher %q: %w", typ, cfg.ID, err)
	}
	return pub, nil
}

// BuildFanout constructs every publisher in cfgs. On failure the publishers
// built so far are closed.
func (b Builders) BuildFanout(ctx context.Context, cfgs []PublisherConfig, log Logger) (*Fanout, error) {
	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		pub, err := b.Build(ctx, cfg, log)
		if err != nil {
			_ = NewFanout(pubs).Close()
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return NewFanout(pubs), nil
}
