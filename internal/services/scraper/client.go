// -----------------------------------------------------------------------
// Scrape HTTP Client - shared transport with per-domain rate limiting
// -----------------------------------------------------------------------

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/venari/internal/common"
)

// Client wraps a shared http.Client for all scrape traffic. Every request
// waits on a per-domain token bucket so the service never hammers one host,
// regardless of how many sources point at it. Responses are classified into
// the scrape error taxonomy before the body reaches an adapter.
type Client struct {
	http      *http.Client
	userAgent string
	maxBody   int64
	delay     time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	logger arbor.ILogger
}

// NewClient builds the shared scrape client from configuration. Zero-valued
// settings fall back to the packaged defaults.
func NewClient(cfg common.ScraperConfig, logger arbor.ILogger) *Client {
	if logger == nil {
		logger = common.GetLogger()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	maxBody := int64(cfg.MaxBodySize)
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = common.NewDefaultConfig().Scraper.UserAgent
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBody:   maxBody,
		delay:     delay,
		limiters:  make(map[string]*rate.Limiter),
		logger:    logger,
	}
}

// Get fetches a URL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, rawURL, nil, headers)
}

// Do performs a rate-limited request. The returned error is one of the
// typed scrape errors when the failure could be classified.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid url %q", rawURL)}
	}

	if err := c.limiter(parsed.Host).Wait(ctx); err != nil {
		return nil, &TransientError{Err: err}
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Covers timeouts, DNS failures, and refused connections.
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, &TransientError{Status: resp.StatusCode, Err: err}
	}

	c.logger.Debug().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionRequest).
		Str("method", method).
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("Request complete")

	return classifyResponse(resp, data, rawURL)
}

// limiter returns the token bucket for a host, creating it on first use.
func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lim, ok := c.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(c.delay), 1)
	c.limiters[host] = lim
	return lim
}

// classifyResponse maps a response onto the scrape error taxonomy. 2xx
// passes the body through; everything else becomes a typed error.
func classifyResponse(resp *http.Response, body []byte, rawURL string) ([]byte, error) {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return body, nil

	case status == http.StatusNotFound:
		return nil, &NotFoundError{URL: rawURL}

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// Cloudflare serves challenges with a 403, which is bot
		// protection rather than a login wall.
		if marker := protectionMarker(string(body)); marker != "" {
			return nil, &BotProtectionError{Marker: marker, URL: rawURL}
		}
		if hint := protectedAPIHint(string(body)); hint != "" {
			return nil, &ProtectedAPIError{URL: rawURL, Hint: hint}
		}
		return nil, &AuthError{Status: status, URL: rawURL}

	case status == http.StatusTooManyRequests:
		return nil, &TransientError{Status: status, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	case status >= 500:
		return nil, &TransientError{Status: status, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	default:
		if hint := protectedAPIHint(string(body)); hint != "" {
			return nil, &ProtectedAPIError{URL: rawURL, Hint: hint}
		}
		return nil, &ConfigError{Status: status, Reason: http.StatusText(status)}
	}
}

// parseRetryAfter accepts both header forms: delay seconds and HTTP-date.
// Unparseable or past values yield zero.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
