package httpclient

import "context"

// Response is the part of an HTTP response the quote fetcher reads.
type Response interface {
	Body() []byte
	StatusCode() int
	// Header returns the first value of the named response header.
	Header(key string) string
}

// Client issues GET requests for quote pages. Tests substitute fakes.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
