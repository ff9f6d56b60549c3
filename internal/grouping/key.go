// Package grouping computes the grouping key that decides which
// PerHostQueue a UrlDatum lands in, consulting robots.txt and a bad-hosts
// cache along the way.
package grouping

import (
	"strconv"
	"time"
)

// Kind discriminates the variants of Key.
type Kind int

const (
	// Fetchable carries a host (or resolved IP) and the crawl-delay that
	// applies to it.
	Fetchable Kind = iota
	// UnknownHost means the URL names no reachable host: it did not parse,
	// DNS resolution failed, or robots.txt acquisition returned an error.
	UnknownHost
	// Blocked means robots.txt forbids this URL for this user agent, either
	// because the host forbids all crawling or because the path is
	// disallowed.
	Blocked
	// Deferred means robots.txt was unavailable (429/5xx/network error)
	// and the URL should be retried later rather than dropped.
	Deferred
	// Skipped means the URL was excluded for a reason other than robots
	// or DNS (e.g. the ScoreGenerator's SkipUrlScore sentinel downstream).
	Skipped
)

// Key is the tagged-variant grouping key. Construct one with the FetchableKey,
// UnknownHostKey, BlockedKey, DeferredKey or SkippedKey constructors; the
// zero value is not a valid Key.
type Key struct {
	kind       Kind
	host       string
	crawlDelay time.Duration
}

// FetchableKey builds a Key for a host that passed robots/DNS checks.
func FetchableKey(host string, crawlDelay time.Duration) Key {
	return Key{kind: Fetchable, host: host, crawlDelay: crawlDelay}
}

// UnknownHostKey builds the sentinel Key for a URL with no reachable host
// (unparseable URL, DNS failure, or robots.txt acquisition error).
func UnknownHostKey() Key { return Key{kind: UnknownHost} }

// BlockedKey builds the sentinel Key for a URL that robots.txt forbids.
func BlockedKey() Key { return Key{kind: Blocked} }

// DeferredKey builds the sentinel Key for a host whose robots.txt could not
// be fetched (429/5xx/network error) and should be retried later.
func DeferredKey() Key { return Key{kind: Deferred} }

// SkippedKey builds the sentinel Key for a URL excluded outright.
func SkippedKey() Key { return Key{kind: Skipped} }

// Kind reports which variant this Key holds.
func (k Key) Kind() Kind { return k.kind }

// Host returns the grouping host. Only meaningful when Kind() == Fetchable.
func (k Key) Host() string { return k.host }

// CrawlDelay returns the per-host crawl-delay. Only meaningful when
// Kind() == Fetchable.
func (k Key) CrawlDelay() time.Duration { return k.crawlDelay }

// Fetchable-ness as seen by the rest of the pipeline: only a Fetchable key
// is ever offered to a PerHostQueue.
func (k Key) IsFetchable() bool { return k.kind == Fetchable }

const (
	unknownHostGroupingKey = "_UNKNOWN_HOST_"
	blockedGroupingKey     = "_BLOCKED_"
	deferredGroupingKey    = "_DEFERRED_"
	skippedGroupingKey     = "_SKIPPED_"
)

// String renders the stable delimited-string form the surrounding
// pipeline's group-by step keys on: "host-delayMs" for Fetchable, or one of
// the fixed sentinel strings for the other variants. This is the sole
// reason the string form exists at all; internal code should compare Kind
// and Host directly instead of parsing it back.
func (k Key) String() string {
	switch k.kind {
	case Fetchable:
		return k.host + "-" + strconv.FormatInt(k.crawlDelay.Milliseconds(), 10)
	case UnknownHost:
		return unknownHostGroupingKey
	case Blocked:
		return blockedGroupingKey
	case Deferred:
		return deferredGroupingKey
	case Skipped:
		return skippedGroupingKey
	default:
		return skippedGroupingKey
	}
}
