// Package httpfetcher is the connection-pooled HTTP fetch engine: it reads
// a response body in chunks, tracks the instantaneous read rate to detect
// and abort on a slow peer, and truncates content at a configured cap.
package httpfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/telemetry/tracing"
)

var tracer = tracing.Tracer("politefetch/httpfetcher")

const (
	readChunkSize = 8 * 1024

	// errorBodyWindow caps how much of a non-2xx response body is kept
	// for debugging.
	errorBodyWindow = 1024
)

// Fetcher is the HTTP fetch engine shared across every worker. Its
// connection pool is lazily initialized on first use and is safe for
// concurrent use by many goroutines.
type Fetcher struct {
	client    *http.Client
	userAgent string
	policy    fetchmodel.FetcherPolicy
	logger    *zap.Logger
}

// Option configures a Fetcher at construction time.
type Option func(*Fetcher)

// WithLogger attaches structured logging.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithTransport overrides the underlying http.RoundTripper, primarily for
// tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.client.Transport = rt }
}

// New builds a Fetcher. The connection pool's per-route cap is
// ThreadsPerHost+1; the extra slot permits a concurrent robots.txt fetch
// against a host that is already at its content-fetch cap.
func New(userAgent string, policy fetchmodel.FetcherPolicy, maxThreads int, opts ...Option) *Fetcher {
	perRoute := policy.ThreadsPerHost() + 1
	transport := &http.Transport{
		MaxIdleConns:          maxThreads,
		MaxIdleConnsPerHost:   perRoute,
		MaxConnsPerHost:       perRoute,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
	}
	f := &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   0, // per-chunk rate monitoring replaces a blanket deadline
		},
		userAgent: userAgent,
		policy:    policy,
		logger:    zap.NewNop(),
	}
	f.client.CheckRedirect = f.checkRedirect
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves datum.URL and returns the resulting FetchedDatum. It
// never returns an error: every failure mode (HTTP error status,
// connection failure, slow-peer abort) is encoded in the returned datum's
// Status field.
func (f *Fetcher) Fetch(ctx context.Context, datum fetchmodel.ScoredUrlDatum) fetchmodel.FetchedDatum {
	ctx, span := tracer.Start(ctx, "HttpFetcher.Fetch")
	defer span.End()

	out := fetchmodel.FetchedDatum{
		URL:         datum.URL,
		CompletedAt: time.Now(),
		Metadata:    datum.Metadata.Clone(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, datum.URL, nil)
	if err != nil {
		out.Status = fetchmodel.StatusError
		out.CompletedAt = time.Now()
		return out
	}
	req.Header.Set("User-Agent", f.userAgent)

	var redirectChain []string
	ctx = withRedirectChain(ctx, &redirectChain)
	req = req.WithContext(ctx)

	resp, err := f.doWithRetry(req)
	if err != nil {
		out.Status = fetchmodel.StatusError
		out.CompletedAt = time.Now()
		f.logger.Debug("fetch failed", zap.String("url", datum.URL), zap.Error(err))
		return out
	}
	defer resp.Body.Close()

	out.RedirectedURL = resp.Request.URL.String()
	out.RedirectChain = redirectChain
	out.HTTPStatus = resp.StatusCode
	out.Headers = headersFromResponse(resp)
	out.ContentType = resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep a small debug window of the error body rather than the
		// full content cap.
		content, _, rate, _ := f.readBody(resp, errorBodyWindow)
		out.Content = content
		out.ReadRateBps = rate
		out.Status = fetchmodel.StatusError
		out.CompletedAt = time.Now()
		return out
	}

	content, truncated, rate, aborted := f.readBody(resp, f.policy.MaxContentSize())
	out.Content = content
	out.Truncated = truncated
	out.ReadRateBps = rate
	out.CompletedAt = time.Now()
	if aborted {
		out.Status = fetchmodel.StatusAborted
	} else {
		out.Status = fetchmodel.StatusFetched
	}
	return out
}

// GetBytes retrieves rawURL's full body, for collaborators (robots.txt
// acquisition) that need the raw bytes plus a typed error rather than a
// FetchedDatum. It does not honor MinResponseRate truncation/abort
// semantics; it applies MaxContentSize only as a hard read cap.
func (f *Fetcher) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.doWithRetry(req)
	if err != nil {
		return nil, &IOFetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	limit := f.policy.MaxContentSize()
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &IOFetchError{URL: rawURL, Err: err}
	}
	return body, nil
}

// doWithRetry retries up to three attempts on a dropped-connection-before-
// response failure, never on a TLS handshake failure.
func (f *Fetcher) doWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	operation := func() error {
		r, err := f.client.Do(req)
		if err != nil {
			if isTLSHandshakeError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(operation, backoff.WithContext(policy, req.Context())); err != nil {
		return nil, err
	}
	return resp, nil
}

func isTLSHandshakeError(err error) bool {
	var rhe tls.RecordHeaderError
	var cve *tls.CertificateVerificationError
	var alert tls.AlertError
	if errors.As(err, &rhe) || errors.As(err, &cve) || errors.As(err, &alert) {
		return true
	}
	// net/http reports a handshake timeout with an unexported error type.
	return strings.Contains(err.Error(), "TLS handshake timeout")
}

func headersFromResponse(resp *http.Response) *fetchmodel.Headers {
	h := fetchmodel.NewHeaders()
	for name, values := range resp.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	return h
}

type redirectChainKey struct{}

func withRedirectChain(ctx context.Context, chain *[]string) context.Context {
	return context.WithValue(ctx, redirectChainKey{}, chain)
}

// checkRedirect records every intermediate URL (bounded by MaxRedirects)
// instead of silently discarding them, and enforces the redirect cap by
// returning an error once the hop count would exceed it.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if chain, ok := req.Context().Value(redirectChainKey{}).(*[]string); ok && len(via) > 0 {
		*chain = append(*chain, via[len(via)-1].URL.String())
	}
	maxRedirects := f.policy.MaxRedirects()
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	if len(via) > maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// readBody reads resp.Body in 8KiB chunks, computing the instantaneous
// read rate after each chunk and aborting once it drops below
// MinResponseRate while more bytes remain to be read. Reads stop at EOF or at maxSize, whichever comes
// first; Content-Length only informs the target length, and a body
// shorter than advertised delivers fewer bytes rather than an error.
func (f *Fetcher) readBody(resp *http.Response, maxSize int64) (content []byte, truncated bool, rateBps int64, aborted bool) {
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}
	target := maxSize
	if cl := resp.ContentLength; cl > 0 && cl < target {
		target = cl
	}

	buf := make([]byte, 0, target)
	chunk := make([]byte, readChunkSize)
	start := time.Now()
	minRate := f.policy.MinResponseRate()

	for int64(len(buf)) < target {
		toRead := chunk
		remaining := target - int64(len(buf))
		if remaining < int64(len(toRead)) {
			toRead = chunk[:remaining]
		}
		n, err := resp.Body.Read(toRead)
		if n > 0 {
			buf = append(buf, toRead[:n]...)
		}
		elapsed := time.Since(start)
		if elapsed > 0 {
			rateBps = int64(float64(len(buf)) / elapsed.Seconds())
		}
		if minRate > 0 && elapsed > 0 && err == nil && int64(len(buf)) < target && rateBps < minRate {
			slowErr := &SlowPeerError{
				URL:         resp.Request.URL.String(),
				ObservedBps: rateBps,
				MinBps:      minRate,
			}
			f.logger.Debug("aborting slow read", zap.Error(slowErr))
			return buf, int64(len(buf)) < resp.ContentLength, rateBps, true
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return buf, true, rateBps, true
		}
	}

	truncated = resp.ContentLength > int64(len(buf)) || (resp.ContentLength <= 0 && int64(len(buf)) >= maxSize)
	return buf, truncated, rateBps, false
}
