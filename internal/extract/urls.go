package extract

import (
	"net/url"
	"strings"
)

// trackingParams are dropped from seen-URL keys.
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"}

// resolveLink turns a result anchor href into an absolute http(s) URL.
// One level of redirect indirection ("/url?q=<target>&...") is unwrapped.
// Relative and non-http links yield "".
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/url?") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		target := u.Query().Get("q")
		if target == "" {
			target = u.Query().Get("url")
		}
		href = target
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return href
	}
	return ""
}

// canonicalKey normalizes a URL for duplicate detection: lowercased host,
// no fragment and no common tracking parameters.
func canonicalKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// adHosts mark sponsored result links.
var adHosts = []string{"googleadservices", "doubleclick.net", "googlesyndication", "/aclk?"}

func isAdLink(u string) bool {
	lower := strings.ToLower(u)
	for _, h := range adHosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
