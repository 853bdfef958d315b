package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for harvested URLs.
const (
	OutcomeStored  = "stored"
	OutcomeSkipped = "skipped"
	OutcomeMissed  = "missed"
	OutcomeFailed  = "failed"
)

const namespace = "quote_harvester"

// Harvest collects harvester counters on a private registry.
type Harvest struct {
	registry  *prometheus.Registry
	urls      *prometheus.CounterVec
	fetches   *prometheus.HistogramVec
	published *prometheus.CounterVec
}

// NewHarvest registers harvester metrics plus the Go and process collectors.
func NewHarvest() *Harvest {
	reg := prometheus.NewRegistry()
	h := &Harvest{
		registry: reg,
		urls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_total",
			Help:      "Quote URLs processed, by source and outcome.",
		}, []string{"source", "outcome"}),
		fetches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Quote page fetch latency, by source and result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Quote events accepted by publishers, by source.",
		}, []string{"source"}),
	}
	reg.MustRegister(
		h.urls,
		h.fetches,
		h.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return h
}

// ObserveURL counts one processed URL.
func (h *Harvest) ObserveURL(source, outcome string) {
	if h == nil {
		return
	}
	h.urls.WithLabelValues(source, outcome).Inc()
}

// ObserveFetch records the latency of one page fetch.
func (h *Harvest) ObserveFetch(source string, elapsed time.Duration, err error) {
	if h == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.fetches.WithLabelValues(source, result).Observe(elapsed.Seconds())
}

// ObservePublished adds the number of publishers that accepted an event.
func (h *Harvest) ObservePublished(source string, accepted int) {
	if h == nil || accepted <= 0 {
		return
	}
	h.published.WithLabelValues(source).Add(float64(accepted))
}

// Registry exposes the underlying registry for tests and custom exporters.
func (h *Harvest) Registry() *prometheus.Registry { return h.registry }

// Handler serves the registry in the Prometheus exposition format.
func (h *Harvest) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (h *Harvest) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
