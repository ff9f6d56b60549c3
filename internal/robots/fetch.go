package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Fetcher retrieves and parses robots.txt for a host, retrying transient
// failures the way HttpFetcher retries connection-level failures.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher builds a Fetcher using userAgent in both the request header
// and the Rules.Test/CrawlDelay lookups callers perform afterward.
func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  1 << 20,
	}
}

// Fetch retrieves robots.txt for the host of target, making up to three
// attempts on transport-level failure before giving up and returning a
// Defer Rules. A non-transport HTTP response (including 4xx/5xx) is never
// retried here; it is handled directly by FromBytes/FromError.
func (f *Fetcher) Fetch(ctx context.Context, target *url.URL) (*Rules, error) {
	robotsURL := *target
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""

	var statusCode int
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("new robots request: %w", err))
		}
		req.Header.Set("User-Agent", f.userAgent)
		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch robots: %w", err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
		if err != nil {
			return fmt.Errorf("read robots body: %w", err)
		}
		statusCode, body = resp.StatusCode, b
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return FromError(time.Now()), nil
	}

	if isDeferStatus(statusCode) {
		return FromError(time.Now()), nil
	}
	return FromBytes(statusCode, body, time.Now())
}

func isDeferStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}
