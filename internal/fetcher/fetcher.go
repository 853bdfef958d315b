package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/samvad-hq/samvad-quote-harvester/pkg/httpclient"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute https URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrBodyTooLarge is returned for pages above the body cap; a cut page
	// would parse into a partial quote.
	ErrBodyTooLarge = errors.New("page body too large")
)

const (
	maxHTMLBodyBytes = 2 << 20 // 2 MiB
	snippetBytes     = 512
)

// DefaultHeaders mimic a desktop browser; quote sites refuse bare clients.
var DefaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "fr-FR,fr;q=0.8,en-US;q=0.5,en;q=0.3",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
	"Connection":      "keep-alive",
}

// Fetcher downloads quote pages.
type Fetcher struct {
	client httpclient.Client
}

// New builds a Fetcher on client.
func New(client httpclient.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Get validates rawURL and returns the page body. Headers override the defaults
// key by key; empty values are ignored.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	if f == nil || f.client == nil {
		return "", fmt.Errorf("fetcher is not initialized")
	}

	target, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Get(ctx, target, mergeHeaders(headers))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}

	body := resp.Body()
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return "", fmt.Errorf("fetch %s: status %d body: %s", target, resp.StatusCode(), snippet(body))
	}
	if len(body) > maxHTMLBodyBytes {
		return "", fmt.Errorf("fetch %s: %w: %d bytes (limit %d)", target, ErrBodyTooLarge, len(body), maxHTMLBodyBytes)
	}
	return decodeBody(body, resp.Header("Content-Type")), nil
}

// decodeBody converts legacy-encoded pages to UTF-8 using the BOM, the
// Content-Type charset or a <meta charset> declaration. Bodies that cannot be
// decoded are returned as is.
func decodeBody(body []byte, contentType string) string {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// NormalizeURL parses rawURL, requires an https scheme and a host, and returns
// the canonical href with non-ASCII characters percent-encoded.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return "", fmt.Errorf("%w: %q: scheme must be https", ErrInvalidURL, rawURL)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrInvalidURL, rawURL)
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

func mergeHeaders(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(DefaultHeaders)+len(overrides))
	for k, v := range DefaultHeaders {
		out[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[http.CanonicalHeaderKey(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetBytes {
		return s[:snippetBytes] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
