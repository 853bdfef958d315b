package harvester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
	"github.com/samvad-hq/samvad-quote-harvester/internal/extractor"
	"github.com/samvad-hq/samvad-quote-harvester/internal/fetcher"
	"github.com/samvad-hq/samvad-quote-harvester/internal/logger"
	"github.com/samvad-hq/samvad-quote-harvester/internal/metrics"
	"github.com/samvad-hq/samvad-quote-harvester/internal/storage"
	"github.com/samvad-hq/samvad-quote-harvester/pkg/publishers"
	"github.com/samvad-hq/samvad-quote-harvester/pkg/sources"
)

const defaultConcurrency = 2

// Summary counts the outcome of a harvest pass.
type Summary struct {
	Stored  int64 `json:"stored"`
	Skipped int64 `json:"skipped"`
	Missed  int64 `json:"missed"`
	Failed  int64 `json:"failed"`
}

type counters struct {
	stored, skipped, missed, failed atomic.Int64
}

func (c *counters) add(outcome string) {
	switch outcome {
	case metrics.OutcomeStored:
		c.stored.Add(1)
	case metrics.OutcomeSkipped:
		c.skipped.Add(1)
	case metrics.OutcomeMissed:
		c.missed.Add(1)
	case metrics.OutcomeFailed:
		c.failed.Add(1)
	}
}

func (c *counters) summary() Summary {
	return Summary{
		Stored:  c.stored.Load(),
		Skipped: c.skipped.Load(),
		Missed:  c.missed.Load(),
		Failed:  c.failed.Load(),
	}
}

// Service harvests quotes from configured sources into the store and publishers.
type Service struct {
	fetcher     PageFetcher
	store       storage.Store
	publisher   EventPublisher
	log         logger.Logger
	metrics     Metrics
	concurrency int
	now         func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithConcurrency bounds how many sources are harvested at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock sets the clock used for scrape timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics reports per-URL outcomes and fetch latency to m.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService wires a harvester. A nil publisher disables publishing.
func NewService(f PageFetcher, store storage.Store, pub EventPublisher, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		fetcher:     f,
		store:       store,
		publisher:   pub,
		log:         logger.Ensure(log),
		metrics:     nopMetrics{},
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one harvest pass over srcs. Per-URL failures do not stop the pass;
// they are logged and returned joined.
func (s *Service) Run(ctx context.Context, srcs []sources.Source) (Summary, error) {
	if s == nil || s.fetcher == nil || s.store == nil {
		return Summary{}, fmt.Errorf("harvester service is not initialized")
	}
	if len(srcs) == 0 {
		return Summary{}, fmt.Errorf("no sources configured for harvesting")
	}

	var (
		c      counters
		mu     sync.Mutex
		errs   []error
		record = func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, src := range srcs {
		g.Go(func() error {
			s.runSource(gctx, src, &c, record)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		record(err)
	}
	return c.summary(), errors.Join(errs...)
}

func (s *Service) runSource(ctx context.Context, src sources.Source, c *counters, record func(error)) {
	limiter := rate.NewLimiter(rate.Every(src.RequestDelay()), 1)
	before := c.summary()

	for rawURL := range src.QuoteURLs() {
		if ctx.Err() != nil {
			return
		}

		outcome, err := s.harvestURL(ctx, src, rawURL, limiter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			outcome = metrics.OutcomeFailed
			record(fmt.Errorf("source %s: %w", src.ID, err))
			s.log.WarnObj("quote harvest failed", "harvest_error", map[string]any{
				"source_id": src.ID,
				"url":       rawURL,
				"error":     err.Error(),
			})
		}
		c.add(outcome)
		s.metrics.ObserveURL(src.ID, outcome)
	}

	after := c.summary()
	s.log.InfoObj("source harvest completed", "source_result", map[string]any{
		"source_id": src.ID,
		"urls":      src.QuoteCount(),
		"stored":    after.Stored - before.Stored,
		"missed":    after.Missed - before.Missed,
		"failed":    after.Failed - before.Failed,
	})
}

// harvestURL processes one page and returns its outcome. Requests to the
// same source are spaced by limiter.
func (s *Service) harvestURL(ctx context.Context, src sources.Source, rawURL string, limiter *rate.Limiter) (string, error) {
	target, err := fetcher.NormalizeURL(rawURL)
	if err != nil {
		return metrics.OutcomeFailed, err
	}

	stored, err := s.store.HasURL(ctx, target)
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("check stored %s: %w", target, err)
	}
	if stored {
		return metrics.OutcomeSkipped, nil
	}

	missed, err := s.store.RecentMiss(ctx, target)
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("check miss %s: %w", target, err)
	}
	if missed {
		return metrics.OutcomeSkipped, nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return metrics.OutcomeFailed, err
	}

	start := time.Now()
	html, err := s.fetcher.Get(ctx, target, sources.Headers(src))
	s.metrics.ObserveFetch(src.ID, time.Since(start), err)
	if err != nil {
		if ctx.Err() == nil {
			s.markMiss(ctx, target)
		}
		return metrics.OutcomeFailed, err
	}

	rec := &extractor.Recorder{}
	eng, err := extractor.FromHTML(html,
		extractor.WithClock(s.now),
		extractor.WithReporter(extractor.MultiReporter(rec, s.diagnosticLogger(src, target))),
	)
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("parse %s: %w", target, err)
	}

	quote := eng.ParseMetadata()
	lines := eng.ParseLines()
	if !isQuotePage(quote, rec.Diagnostics()) {
		s.markMiss(ctx, target)
		return metrics.OutcomeMissed, nil
	}
	quote.URL = target

	saved, err := s.store.SaveQuote(ctx, quote, lines)
	switch {
	case errors.Is(err, storage.ErrDuplicateURL), errors.Is(err, storage.ErrDuplicateTitle):
		s.log.DebugObj("quote already stored", "harvest_duplicate", map[string]any{
			"source_id": src.ID,
			"url":       target,
			"reason":    err.Error(),
		})
		return metrics.OutcomeSkipped, nil
	case err != nil:
		return metrics.OutcomeFailed, fmt.Errorf("save %s: %w", target, err)
	}

	for i := range lines {
		lines[i].QuoteID = saved.ID
	}
	return metrics.OutcomeStored, s.publish(ctx, src, saved, lines)
}

func (s *Service) publish(ctx context.Context, src sources.Source, q domain.Quote, lines []domain.QuoteLine) error {
	if s.publisher == nil {
		return nil
	}
	evt := publishers.NewEvent(src.ID, src.Name, q, lines)
	accepted, err := s.publisher.Publish(ctx, evt)
	s.metrics.ObservePublished(src.ID, accepted)
	if err != nil {
		return fmt.Errorf("publish %s: %w", q.URL, err)
	}
	return nil
}

func (s *Service) markMiss(ctx context.Context, url string) {
	if err := s.store.MarkMiss(ctx, url); err != nil {
		s.log.WarnObj("record fetch miss failed", "harvest_miss_error", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
	}
}

func (s *Service) diagnosticLogger(src sources.Source, url string) extractor.Reporter {
	return extractor.ReporterFunc(func(d extractor.Diagnostic) {
		s.log.DebugObj("quote extraction incomplete", "extract_diagnostic", map[string]any{
			"source_id": src.ID,
			"url":       url,
			"kind":      string(d.Kind),
			"field":     d.Field,
			"detail":    d.Detail,
		})
	})
}

// isQuotePage rejects pages with neither a title nor a content container,
// which is what quote sites serve for deleted or unpublished ids.
func isQuotePage(q domain.Quote, diags []extractor.Diagnostic) bool {
	if q.Title != "" {
		return true
	}
	for _, d := range diags {
		if d.Kind == extractor.KindNoContentContainer {
			return false
		}
	}
	return true
}
