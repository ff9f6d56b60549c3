// Package robots wraps github.com/temoto/robotstxt with the semantic
// states a polite fetcher needs: a forbidden host is distinct from a host
// whose robots.txt simply could not be fetched this time.
package robots

import (
	"net/http"
	"time"

	"github.com/temoto/robotstxt"
)

// Disposition classifies the outcome of acquiring robots.txt for a host.
type Disposition int

const (
	// Allowed means normal operation: some paths may still be disallowed
	// for the configured user agent, queried via Rules.Test.
	Allowed Disposition = iota
	// Forbidden means the host returned 401 or 403 for robots.txt itself,
	// treated as "disallow everything".
	Forbidden
	// Defer means robots.txt could not be determined right now (429, any
	// 5xx, or a network/transport failure) and the host should be retried
	// later rather than treated as permanently blocked.
	Defer
)

// Rules is the parsed (or synthesized) robots.txt state for one host.
type Rules struct {
	disposition Disposition
	data        *robotstxt.RobotsData
	fetchedAt   time.Time
}

// FromBytes parses a robots.txt body fetched with the given HTTP status
// code, mapping the status code to a Disposition: 401/403 forbid
// everything, other
// non-2xx codes (other than 429/5xx, see FromError) leave crawling
// unrestricted, 2xx parses the body normally.
func FromBytes(statusCode int, body []byte, now time.Time) (*Rules, error) {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Rules{disposition: Forbidden, fetchedAt: now}, nil
	}
	data, err := robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		return nil, err
	}
	return &Rules{disposition: Allowed, data: data, fetchedAt: now}, nil
}

// FromError builds the Rules for a robots.txt acquisition that failed
// outright: a 429 or 5xx response, or a network/transport error reaching
// the server at all. Both map to Defer rather than Forbidden, since an
// overloaded or momentarily unreachable host is not declaring intent.
func FromError(now time.Time) *Rules {
	return &Rules{disposition: Defer, fetchedAt: now}
}

// Disposition reports which of the three semantic states this Rules is in.
func (r *Rules) Disposition() Disposition { return r.disposition }

// FetchedAt reports when this Rules was acquired, for cache-eviction
// policies built on top of a host→Rules cache.
func (r *Rules) FetchedAt() time.Time { return r.fetchedAt }

// Test reports whether userAgent may fetch path under the rules for this
// host. Forbidden and Defer dispositions are not meaningful inputs to
// Test; callers must branch on Disposition before reaching here.
func (r *Rules) Test(userAgent, path string) bool {
	if r.disposition != Allowed {
		return false
	}
	group := r.data.FindGroup(userAgent)
	if group == nil {
		return true
	}
	return group.Test(path)
}

// CrawlDelay returns the crawl-delay directive for userAgent, or
// fallback if robots.txt specified none or this Rules has no parsed data.
func (r *Rules) CrawlDelay(userAgent string, fallback time.Duration) time.Duration {
	if r.disposition != Allowed {
		return fallback
	}
	group := r.data.FindGroup(userAgent)
	if group == nil || group.CrawlDelay <= 0 {
		return fallback
	}
	return group.CrawlDelay
}
