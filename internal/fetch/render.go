package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/serpctx/internal/search"
)

// ErrBlocked marks a body that carries a CAPTCHA or block-page marker.
var ErrBlocked = errors.New("blocked by anti-bot page")

// Default endpoints of the rendering providers.
const (
	DefaultScrapingBeeURL = "https://app.scrapingbee.com/api/v1/"
	DefaultZenRowsURL     = "https://api.zenrows.com/v1/"
)

// Renderer returns the HTML of a target URL.
type Renderer interface {
	Render(ctx context.Context, target string) (string, error)
	Name() string
}

// ScrapingBee renders pages through the ScrapingBee API with JS rendering
// and stealth proxies.
type ScrapingBee struct {
	APIKey  string
	BaseURL string
	Client  *Client
}

func (s *ScrapingBee) Name() string { return "scrapingbee" }

func (s *ScrapingBee) Render(ctx context.Context, target string) (string, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return "", fmt.Errorf("scrapingbee: %w", search.ErrUnavailable)
	}
	q := url.Values{}
	q.Set("api_key", s.APIKey)
	q.Set("url", target)
	q.Set("render_js", "true")
	q.Set("premium_proxy", "true")
	q.Set("stealth_proxy", "true")
	q.Set("block_resources", "false")
	q.Set("country_code", "us")
	q.Set("device", "desktop")
	return getText(ctx, renderClient(s.Client), endpoint(s.BaseURL, DefaultScrapingBeeURL, q))
}

// ZenRows renders pages through the ZenRows API with anti-bot bypass.
type ZenRows struct {
	APIKey  string
	BaseURL string
	Client  *Client
}

func (z *ZenRows) Name() string { return "zenrows" }

func (z *ZenRows) Render(ctx context.Context, target string) (string, error) {
	if strings.TrimSpace(z.APIKey) == "" {
		return "", fmt.Errorf("zenrows: %w", search.ErrUnavailable)
	}
	q := url.Values{}
	q.Set("apikey", z.APIKey)
	q.Set("url", target)
	q.Set("js_render", "true")
	q.Set("premium_proxy", "true")
	q.Set("antibot", "true")
	q.Set("location", "United States")
	return getText(ctx, renderClient(z.Client), endpoint(z.BaseURL, DefaultZenRowsURL, q))
}

// Direct fetches the target itself with a rotating browser user agent and
// rejects any body mentioning a CAPTCHA.
type Direct struct {
	Client *Client
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Render(ctx context.Context, target string) (string, error) {
	c := d.Client
	if c == nil {
		c = &Client{PerRequestTimeout: 10 * time.Second, MaxAttempts: 1}
	}
	body, err := getText(ctx, c, target)
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToLower(body), "captcha") {
		return "", fmt.Errorf("direct: %w", ErrBlocked)
	}
	return body, nil
}

func renderClient(c *Client) *Client {
	if c != nil {
		return c
	}
	return &Client{PerRequestTimeout: 60 * time.Second, MaxAttempts: 1, AnyContentType: true}
}

func endpoint(base, fallback string, q url.Values) string {
	if base == "" {
		base = fallback
	}
	return base + "?" + q.Encode()
}

func getText(ctx context.Context, c *Client, target string) (string, error) {
	b, _, err := c.Get(ctx, target)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// blockedMarkers identify search-engine interstitials served instead of results.
var blockedMarkers = []string{
	"Please click here if you are not redirected",
	"having trouble accessing Google Search",
	"detected unusual traffic",
	"Our systems have detected unusual traffic",
}

// IsBlocked reports whether html is empty or a known block page.
func IsBlocked(html string) bool {
	if strings.TrimSpace(html) == "" {
		return true
	}
	for _, m := range blockedMarkers {
		if strings.Contains(html, m) {
			return true
		}
	}
	return false
}

// GoogleSearchURL builds the search-engine URL handed to rendering providers.
func GoogleSearchURL(query, region, language string, limit int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("gl", region)
	q.Set("hl", language)
	q.Set("num", fmt.Sprintf("%d", limit))
	return "https://www.google.com/search?" + q.Encode()
}
