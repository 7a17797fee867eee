package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// ErrBlocked marks a response that looks like a block page or a rate limit.
var ErrBlocked = errors.New("request blocked by remote host")

const maxBodyBytes = 8 << 20

// StatusError carries a non-2xx HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// Is lets errors.Is(err, ErrBlocked) match throttling statuses.
func (e *StatusError) Is(target error) bool {
	return target == ErrBlocked && IsBlockedStatus(e.StatusCode)
}

func IsBlockedStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusForbidden || code == http.StatusServiceUnavailable
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlocked) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusRequestTimeout || se.StatusCode >= 500
	}
	return false
}

// Fingerprint is a set of request headers that imitates one kind of client.
type Fingerprint struct {
	Name    string
	Headers map[string]string
}

// Fingerprints are rotated in order when a backend blocks a request.
var Fingerprints = []Fingerprint{
	{
		Name: "desktop-chrome",
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
	},
	{
		Name: "mobile-safari",
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.8",
		},
	},
	{
		Name: "desktop-firefox",
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-GB,en;q=0.7",
			"DNT":             "1",
		},
	},
}

// Elements that only appear on interstitial challenge pages. Result pages
// may mention captchas in their text, so the body text is never matched.
var challengeSelectors = "form#captcha-form, form#challenge-form, div#recaptcha, div.g-recaptcha, " +
	"div.h-captcha, iframe[src*='recaptcha/api'], div#px-captcha, div#cf-challenge-running"

// blockedPage reports why a 200 response is a block page, if it is one.
// Redirects to a "/sorry/" path mark Google's rate-limit interstitial.
func blockedPage(resp *http.Response, page string) (string, bool) {
	if resp.Request != nil && resp.Request.URL != nil &&
		strings.HasPrefix(resp.Request.URL.Path, "/sorry/") {
		return "redirected to " + resp.Request.URL.Path, true
	}
	if len(page) >= 200_000 {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", false
	}
	if sel := doc.Find(challengeSelectors).First(); sel.Length() > 0 {
		return "challenge element " + goquery.NodeName(sel), true
	}
	return "", false
}

// Client fetches HTML pages through a per-host rate limiter.
type Client struct {
	http    *http.Client
	limiter *HostRateLimiter
}

func NewClient(timeout time.Duration, limiter *HostRateLimiter) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// FetchHTML GETs rawURL with the fingerprint's headers and returns the body.
// Throttling statuses and block pages yield errors matching ErrBlocked.
func (c *Client) FetchHTML(ctx context.Context, rawURL string, fp Fingerprint) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.WaitForHost(ctx, rawURL); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	for k, v := range fp.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &StatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			RetryAfter: RetryAfterDuration(resp, 0, 10*time.Second),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	page := string(body)
	if reason, blocked := blockedPage(resp, page); blocked {
		return "", fmt.Errorf("%w: %s", ErrBlocked, reason)
	}
	return page, nil
}

// HostRateLimiter keeps one token bucket per host.
type HostRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
}

func NewHostRateLimiter(perSecond float64, burst int) *HostRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &HostRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (h *HostRateLimiter) WaitForHost(ctx context.Context, urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	host := parsedURL.Host
	if host == "" {
		return &url.Error{Op: "parse", URL: urlStr, Err: errors.New("missing host in URL")}
	}

	return h.getLimiterForHost(host).Wait(ctx)
}

func (h *HostRateLimiter) getLimiterForHost(host string) *rate.Limiter {
	h.mu.RLock()
	limiter, exists := h.limiters[host]
	h.mu.RUnlock()

	if exists {
		return limiter
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if limiter, exists := h.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(h.limit, h.burst)
	h.limiters[host] = limiter
	return limiter
}

func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

// JitterSleep returns base shifted randomly by up to 20% either way.
func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Domain returns the host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
