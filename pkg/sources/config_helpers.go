package sources

import (
	"net/http"
	"strings"
)

// Source config keys that map onto request headers.
const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"
	ConfigRefererKey        = "referer"
	ConfigCookieKey         = "cookie"

	// ConfigHeadersKey holds a free-form header map.
	ConfigHeadersKey = "headers"
)

var headerKeys = []struct {
	key    string
	header string
}{
	{ConfigUserAgentKey, "User-Agent"},
	{ConfigAcceptKey, "Accept"},
	{ConfigAcceptLanguageKey, "Accept-Language"},
	{ConfigCacheControlKey, "Cache-Control"},
	{ConfigRefererKey, "Referer"},
	{ConfigCookieKey, "Cookie"},
}

// ConfigString returns the trimmed string at key in the source config, or fallback.
func ConfigString(src Source, key, fallback string) string {
	if val, ok := src.Config[key].(string); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// Headers returns the request header overrides of a source. Named keys win over
// the same header listed under config.headers; empty values are skipped.
func Headers(src Source) map[string]string {
	headers := make(map[string]string, len(headerKeys))

	if extra, ok := src.Config[ConfigHeadersKey].(map[string]any); ok {
		for k, raw := range extra {
			v, _ := raw.(string)
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				headers[http.CanonicalHeaderKey(k)] = v
			}
		}
	}
	for _, hk := range headerKeys {
		if v := ConfigString(src, hk.key, ""); v != "" {
			headers[hk.header] = v
		}
	}
	return headers
}
