package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-quote-harvester/internal/config"
	"github.com/samvad-hq/samvad-quote-harvester/internal/fetcher"
	"github.com/samvad-hq/samvad-quote-harvester/internal/harvester"
	"github.com/samvad-hq/samvad-quote-harvester/internal/logger"
	"github.com/samvad-hq/samvad-quote-harvester/internal/metrics"
	"github.com/samvad-hq/samvad-quote-harvester/internal/storage"
	"github.com/samvad-hq/samvad-quote-harvester/pkg/httpclient"
	"github.com/samvad-hq/samvad-quote-harvester/pkg/publishers"
	"github.com/samvad-hq/samvad-quote-harvester/pkg/sources"
)

// Harvester is the quote harvester runtime. It owns the crawl loop, the store
// and the publisher connections.
type Harvester struct {
	cfg           *config.Config
	sources       []sources.Source
	fanout        *publishers.Fanout
	service       *harvester.Service
	crawlInterval time.Duration
	log           logger.Logger
	store         storage.Store
	metrics       *metrics.Harvest
}

// NewHarvester builds a harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	if err := sources.LoadSources(cfg.SourcesFile); err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	sourceList := sources.Sources()
	sourceIDs := make([]string, 0, len(sourceList))
	for _, s := range sourceList {
		sourceIDs = append(sourceIDs, s.ID)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(sourceIDs),
		"ids":   sourceIDs,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	storeOpts := storage.Options{
		MissTTL:         cfg.StorageMissTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.StoragePath(), storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.StoragePath(),
		"miss_ttl_seconds":         int(cfg.StorageMissTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	harvestMetrics := metrics.NewHarvest()
	client := httpclient.NewRetryingRestyClient(cfg.FetchTimeout, cfg.FetchRetries)
	service := harvester.NewService(fetcher.New(client), store, fanout, log,
		harvester.WithConcurrency(cfg.MaxConcurrentSources),
		harvester.WithMetrics(harvestMetrics),
	)

	return &Harvester{
		cfg:           cfg,
		sources:       sourceList,
		fanout:        fanout,
		service:       service,
		crawlInterval: cfg.CrawlInterval,
		log:           log,
		store:         store,
		metrics:       harvestMetrics,
	}, nil
}

// buildFanout loads the publishers file. An empty path disables publishing.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(cfg.PublishersFile) == "" {
		log.WarnObj("no publishers file configured; quotes are stored only", "publishers_file", cfg.PublishersFile)
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	fanout, err := publishers.DefaultBuilders().BuildFanout(ctx, publisherReg.Enabled(), log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"configured": len(publisherReg.All()),
		"enabled":    fanout.IDs(),
	})
	return fanout, nil
}

// Run starts the crawl loop until the context is cancelled.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.service == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()

	h.log.InfoObj("harvester loop starting", "harvester_state", map[string]any{
		"sources_count":    len(h.sources),
		"publishers_count": h.fanout.Size(),
		"crawl_interval":   h.crawlInterval.String(),
		"metrics_addr":     h.cfg.MetricsAddr,
	})
	h.serveMetrics(ctx)

	if err := h.runOnce(ctx); err != nil {
		h.log.ErrorObj("initial crawl failed", "error", err.Error())
	}

	ticker := time.NewTicker(h.crawlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoObj("harvester loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if err := h.runOnce(ctx); err != nil {
				h.log.ErrorObj("scheduled crawl failed", "error", err.Error())
			}
		}
	}
}

// RunOnce performs a single pass and releases resources.
func (h *Harvester) RunOnce(ctx context.Context) (harvester.Summary, error) {
	if h == nil || h.service == nil {
		return harvester.Summary{}, fmt.Errorf("harvester is not initialized")
	}
	defer h.close()

	return h.pass(ctx)
}

// serveMetrics exposes the Prometheus endpoint in the background when an
// address is configured.
func (h *Harvester) serveMetrics(ctx context.Context) {
	addr := strings.TrimSpace(h.cfg.MetricsAddr)
	if addr == "" || h.metrics == nil {
		return
	}
	go func() {
		if err := h.metrics.Serve(ctx, addr); err != nil {
			h.log.ErrorObj("metrics server stopped", "error", err.Error())
		}
	}()
}

func (h *Harvester) runOnce(ctx context.Context) error {
	_, err := h.pass(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Harvester) pass(ctx context.Context) (harvester.Summary, error) {
	start := time.Now()
	h.log.InfoObj("crawl started", "crawl_meta", map[string]any{
		"sources_count": len(h.sources),
		"started_at":    start.UTC(),
	})

	summary, err := h.service.Run(ctx, h.sources)
	h.log.InfoObj("crawl completed", "crawl_meta", map[string]any{
		"sources_count": len(h.sources),
		"elapsed_ms":    time.Since(start).Milliseconds(),
		"summary":       summary,
	})
	return summary, err
}

// close releases the store and publisher connections, logging failures.
func (h *Harvester) close() {
	if err := h.fanout.Close(); err != nil {
		h.log.ErrorObj("publishers close failed", "error", err.Error())
	}
	if h.store == nil {
		return
	}
	if err := h.store.Close(); err != nil {
		h.log.ErrorObj("storage close failed", "error", err.Error())
	}
}
