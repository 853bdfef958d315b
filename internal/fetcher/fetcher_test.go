package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/samvad-hq/samvad-quote-harvester/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	body        []byte
	status      int
	contentType string
}

func (r fakeResponse) Body() []byte    { return r.body }
func (r fakeResponse) StatusCode() int { return r.status }

func (r fakeResponse) Header(key string) string {
	if http.CanonicalHeaderKey(key) == "Content-Type" {
		return r.contentType
	}
	return ""
}

type fakeClient struct {
	resp    httpclient.Response
	err     error
	calls   int
	url     string
	headers map[string]string
}

func (c *fakeClient) Get(_ context.Context, url string, headers map[string]string) (httpclient.Response, error) {
	c.calls++
	c.url = url
	c.headers = headers
	return c.resp, c.err
}

func TestGetReturnsBodyWithBrowserHeaders(t *testing.T) {
	client := &fakeClient{resp: fakeResponse{body: []byte("<html>ok</html>"), status: http.StatusOK}}

	body, err := New(client).Get(context.Background(), "https://example.com/quote/1", map[string]string{
		"accept-language": "en-GB",
		"X-Empty":         " ",
	})
	require.NoError(t, err)

	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, "https://example.com/quote/1", client.url)
	assert.Equal(t, DefaultHeaders["User-Agent"], client.headers["User-Agent"])
	assert.Equal(t, "no-cache", client.headers["Cache-Control"])
	assert.Equal(t, "en-GB", client.headers["Accept-Language"])
	assert.NotContains(t, client.headers, "X-Empty")
}

func TestGetRejectsInvalidURLsWithoutRequest(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"plain http":    "http://example.com/quote/1",
		"relative":      "/quote/1",
		"no host":       "https:///quote/1",
		"other scheme":  "ftp://example.com/quote",
		"malformed":     "https://exa mple.com/%zz",
		"whitespace":    "   ",
		"javascript":    "javascript:alert(1)",
		"scheme only":   "https:",
		"missing colon": "https//example.com",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{}
			_, err := New(client).Get(context.Background(), raw, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidURL), err.Error())
			assert.Zero(t, client.calls)
		})
	}
}

func TestGetDecodesLegacyCharsets(t *testing.T) {
	// "été" in ISO-8859-1.
	page := append([]byte(`<html><head><meta charset="iso-8859-1"></head><body>`), 0xE9, 't', 0xE9)
	page = append(page, []byte("</body></html>")...)
	client := &fakeClient{resp: fakeResponse{body: page, status: http.StatusOK}}

	body, err := New(client).Get(context.Background(), "https://example.com/quote/1", nil)
	require.NoError(t, err)
	assert.Contains(t, body, "<body>été</body>")
}

func TestGetDecodesUsingContentTypeCharset(t *testing.T) {
	client := &fakeClient{resp: fakeResponse{
		body:        []byte{'<', 'p', '>', 0xE0, '<', '/', 'p', '>'},
		status:      http.StatusOK,
		contentType: "text/html; charset=windows-1252",
	}}

	body, err := New(client).Get(context.Background(), "https://example.com/quote/1", nil)
	require.NoError(t, err)
	assert.Equal(t, "<p>à</p>", body)
}

func TestGetKeepsUTF8Bodies(t *testing.T) {
	client := &fakeClient{resp: fakeResponse{body: []byte("<p>déjà</p>"), status: http.StatusOK}}

	body, err := New(client).Get(context.Background(), "https://example.com/quote/1", nil)
	require.NoError(t, err)
	assert.Equal(t, "<p>déjà</p>", body)
}

func TestGetRejectsOversizedBodies(t *testing.T) {
	atLimit := []byte(strings.Repeat("a", maxHTMLBodyBytes))
	client := &fakeClient{resp: fakeResponse{body: atLimit, status: http.StatusOK}}
	body, err := New(client).Get(context.Background(), "https://example.com/quote/1", nil)
	require.NoError(t, err)
	assert.Len(t, body, maxHTMLBodyBytes)

	client = &fakeClient{resp: fakeResponse{body: append(atLimit, 'b'), status: http.StatusOK}}
	body, err = New(client).Get(context.Background(), "https://example.com/quote/2", nil)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Empty(t, body)
}

func TestGetFailsOnNonSuccessStatus(t *testing.T) {
	client := &fakeClient{resp: fakeResponse{body: []byte("not here"), status: http.StatusNotFound}}

	_, err := New(client).Get(context.Background(), "https://example.com/quote/404", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "not here")
	assert.False(t, errors.Is(err, ErrInvalidURL))
}

func TestGetWrapsTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	client := &fakeClient{err: boom}

	_, err := New(client).Get(context.Background(), "https://example.com/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestGetNilFetcher(t *testing.T) {
	var f *Fetcher
	_, err := f.Get(context.Background(), "https://example.com/", nil)
	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com", "https://example.com/"},
		{"  HTTPS://Example.COM/quote/1  ", "https://example.com/quote/1"},
		{"https://example.com/quote/é", "https://example.com/quote/%C3%A9"},
		{"https://example.com/q?id=1#top", "https://example.com/q?id=1#top"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSnippetTruncates(t *testing.T) {
	long := strings.Repeat("a", snippetBytes+10)
	assert.Equal(t, strings.Repeat("a", snippetBytes)+"...", snippet([]byte(long)))
	assert.Equal(t, "<empty>", snippet(nil))
}
