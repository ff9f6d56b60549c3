package grouping

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/robots"
	"github.com/politefetch/politefetch/internal/telemetry/metrics"
	"github.com/politefetch/politefetch/internal/telemetry/tracing"
)

var tracer = tracing.Tracer("politefetch/grouping")

// RobotsFetcher is the collaborator that acquires robots.txt for a host.
// Satisfied by *robots.Fetcher in production and a fake in tests.
type RobotsFetcher interface {
	Fetch(ctx context.Context, target *url.URL) (*robots.Rules, error)
}

// Resolver performs the DNS lookup used by IP-based grouping. Satisfied by
// net.DefaultResolver in production.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Generator computes the grouping Key for a UrlDatum, consulting a
// bad-hosts cache and an LRU-capped host->Rules cache along the way.
//
// Generator is NOT safe for concurrent use: callers needing concurrent
// grouping should use one Generator per worker goroutine.
type Generator struct {
	userAgent     string
	useIPGrouping bool
	crawlDelay    time.Duration
	robotsCache   *robotsLRU
	badHosts      map[string]struct{}
	fetcher       RobotsFetcher
	resolver      Resolver
	logger        *zap.Logger
}

// Option configures a Generator at construction time.
type Option func(*Generator)

// WithResolver overrides the DNS resolver used for IP-based grouping.
func WithResolver(r Resolver) Option {
	return func(g *Generator) { g.resolver = r }
}

// WithLogger attaches structured logging.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// New builds a Generator. fetcher acquires robots.txt; policy supplies the
// default crawl-delay, the IP-vs-PLD grouping mode, and the robots cache
// size.
func New(userAgent string, fetcher RobotsFetcher, policy fetchmodel.FetcherPolicy, opts ...Option) *Generator {
	g := &Generator{
		userAgent:     userAgent,
		useIPGrouping: policy.UseIPGrouping(),
		crawlDelay:    policy.CrawlDelay(),
		robotsCache:   newRobotsLRU(policy.RobotsCacheSize()),
		badHosts:      make(map[string]struct{}),
		fetcher:       fetcher,
		resolver:      net.DefaultResolver,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// KeyFor computes the grouping Key for datum: parse the host,
// short-circuit on the bad-hosts cache, optionally resolve DNS for
// IP-grouping mode, acquire (or reuse cached) robots.txt, and dispatch to
// Blocked/Deferred/Fetchable accordingly.
func (g *Generator) KeyFor(ctx context.Context, datum fetchmodel.UrlDatum) (Key, error) {
	ctx, span := tracer.Start(ctx, "GroupingKeyGenerator.KeyFor")
	defer span.End()

	parsed, err := url.Parse(datum.URL)
	if err != nil || parsed.Host == "" {
		g.logger.Debug("unparseable url, marking unknown host", zap.String("url", datum.URL), zap.Error(err))
		return UnknownHostKey(), nil
	}
	host := strings.ToLower(parsed.Hostname())

	if _, bad := g.badHosts[host]; bad {
		return UnknownHostKey(), nil
	}

	groupHost := host
	if g.useIPGrouping {
		addrs, resolveErr := g.resolver.LookupHost(ctx, host)
		if resolveErr != nil || len(addrs) == 0 {
			g.badHosts[host] = struct{}{}
			g.logger.Debug("dns resolution failed, marking bad host", zap.String("host", host), zap.Error(resolveErr))
			return UnknownHostKey(), nil
		}
		groupHost = addrs[0]
	} else if pld, pldErr := publicsuffix.EffectiveTLDPlusOne(host); pldErr == nil {
		groupHost = pld
	}

	rules, err := g.rulesFor(ctx, parsed, host)
	if err != nil {
		g.badHosts[host] = struct{}{}
		g.logger.Debug("robots acquisition failed, marking bad host", zap.String("host", host), zap.Error(err))
		return UnknownHostKey(), nil
	}

	switch rules.Disposition() {
	case robots.Forbidden:
		return BlockedKey(), nil
	case robots.Defer:
		return DeferredKey(), nil
	}

	if !rules.Test(g.userAgent, parsed.Path) {
		return BlockedKey(), nil
	}

	delay := rules.CrawlDelay(g.userAgent, g.crawlDelay)
	return FetchableKey(groupHost, delay), nil
}

func (g *Generator) rulesFor(ctx context.Context, parsed *url.URL, host string) (*robots.Rules, error) {
	if cached, ok := g.robotsCache.get(host); ok {
		return cached.(*robots.Rules), nil
	}
	rules, err := g.fetcher.Fetch(ctx, parsed)
	if err != nil {
		return nil, err
	}
	metrics.ObserveRobotsOutcome(dispositionLabel(rules.Disposition()))
	g.robotsCache.put(host, rules)
	return rules, nil
}

func dispositionLabel(d robots.Disposition) string {
	switch d {
	case robots.Forbidden:
		return "forbidden"
	case robots.Defer:
		return "defer"
	default:
		return "allowed"
	}
}

// CacheSize reports the current number of cached hosts, for admin/metrics
// surfaces.
func (g *Generator) CacheSize() int { return g.robotsCache.len() }
