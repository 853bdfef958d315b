package publishers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/samvad-quote-harvester/pkg/httpclient"
)

const (
	headerEventID     = "X-Quote-Event-Id"
	headerQuoteSource = "X-Quote-Source"
	httpRetryWait     = 200 * time.Millisecond
	httpSnippetBytes  = 512
)

// httpPublisher delivers each quote event as a JSON webhook call.
type httpPublisher struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  *resty.Client
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	client := httpclient.NewRestyHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.HTTP.Retries > 0 {
		client.SetRetryCount(cfg.HTTP.Retries).
			SetRetryWaitTime(httpRetryWait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
			})
	}

	return &httpPublisher{
		id:      cfg.ID,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  client,
		log:     ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

// Publish sends the event as JSON. The event id travels in a header so
// receivers can drop redelivered retries.
func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	req := h.client.R().
		SetContext(ctx).
		SetHeaders(h.headers).
		SetBody(evt)
	if evt.ID != "" {
		req.SetHeader(headerEventID, evt.ID)
	}
	if evt.SourceID != "" {
		req.SetHeader(headerQuoteSource, evt.SourceID)
	}

	resp, err := req.Execute(h.method, h.url)
	if err != nil {
		return fmt.Errorf("%s %s: %w", h.method, h.url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s %s: status %d: %s", h.method, h.url, resp.StatusCode(), responseSnippet(resp.Body()))
	}

	h.log.DebugObj("http publisher delivered quote", "publisher_http_delivery", map[string]any{
		"publisher_id": h.id,
		"event_id":     evt.ID,
		"quote_url":    evt.Quote.URL,
		"status":       resp.StatusCode(),
	})
	return nil
}

func responseSnippet(body []byte) string {
	if len(body) > httpSnippetBytes {
		body = body[:httpSnippetBytes]
	}
	return strings.TrimSpace(string(body))
}
