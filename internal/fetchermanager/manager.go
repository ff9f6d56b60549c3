// Package fetchermanager runs the scheduler loop that ties QueueManager,
// HttpFetcher and the content/status sinks together: take the next ready
// PerHostQueue, poll its head, dispatch a bounded worker to fetch it, emit
// results, release the slot.
package fetchermanager

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	clocksystem "github.com/politefetch/politefetch/internal/clock/system"
	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/hostqueue"
	iduuid "github.com/politefetch/politefetch/internal/id/uuid"
	"github.com/politefetch/politefetch/internal/telemetry/metrics"
	"github.com/politefetch/politefetch/internal/telemetry/tracing"
)

var tracer = tracing.Tracer("politefetch/fetchermanager")

// Fetcher performs the actual HTTP fetch for one ScoredUrlDatum.
// Satisfied by *httpfetcher.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, datum fetchmodel.ScoredUrlDatum) fetchmodel.FetchedDatum
}

// Clock returns the current time, overridable in tests. Satisfied by
// internal/clock/system.Clock in production.
type Clock interface {
	Now() time.Time
}

// ContentSink receives the FetchedDatum of every dispatched fetch, whatever
// its status (FETCHED, ERROR or ABORTED).
type ContentSink interface {
	PutContent(ctx context.Context, datum fetchmodel.FetchedDatum) error
}

// StatusSink receives exactly one StatusDatum per input UrlDatum,
// regardless of which disposition it took.
type StatusSink interface {
	PutStatus(ctx context.Context, datum fetchmodel.StatusDatum) error
}

// Manager drives the scheduler loop until every queue drains or the
// crawl deadline passes.
type Manager struct {
	queues   *hostqueue.QueueManager
	fetcher  Fetcher
	content  ContentSink
	status   StatusSink
	policy   fetchmodel.FetcherPolicy
	logger   *zap.Logger
	runID    string
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	pollWait time.Duration
	clock    Clock
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger attaches structured logging.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithPollWait overrides how long TakeReady blocks per scheduler iteration
// before re-checking shutdown conditions. Defaults to one second.
func WithPollWait(d time.Duration) Option {
	return func(m *Manager) { m.pollWait = d }
}

// WithClock overrides the Manager's notion of "now", for deterministic
// deadline tests.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithRunID overrides the generated run ID, for callers that mint the ID
// up front to share between the Manager and their own logging.
func WithRunID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.runID = id
		}
	}
}

// New builds a Manager. maxThreads bounds the number of concurrently
// in-flight fetches across every host; policy.MaxGlobalRPS (if nonzero)
// further bounds the aggregate dispatch rate via golang.org/x/time/rate.
func New(queues *hostqueue.QueueManager, fetcher Fetcher, content ContentSink, status StatusSink, policy fetchmodel.FetcherPolicy, maxThreads int, opts ...Option) *Manager {
	if maxThreads <= 0 {
		maxThreads = 1
	}
	runID, _ := iduuid.NewGenerator().NewID()
	m := &Manager{
		queues:   queues,
		fetcher:  fetcher,
		content:  content,
		status:   status,
		policy:   policy,
		logger:   zap.NewNop(),
		runID:    runID,
		sem:      semaphore.NewWeighted(int64(maxThreads)),
		pollWait: time.Second,
		clock:    clocksystem.New(),
	}
	if policy.MaxGlobalRPS() > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(policy.MaxGlobalRPS()), 1)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunID returns the UUID assigned to this Manager, used to correlate logs
// and trace spans for one crawl run.
func (m *Manager) RunID() string { return m.runID }

// Run drives the scheduler loop until ctx is cancelled or every queue is
// drained. Workers run inside a conc/pool pool, with concurrency bounded by
// the worker semaphore; each worker recovers a panicking fetch and surfaces
// it as a FETCH_ERROR status rather than crashing the loop.
func (m *Manager) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()
	defer func() {
		_ = p.Wait()
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.pastDeadline() {
			return m.drainRemaining(ctx)
		}
		if m.queues.IsDone() {
			return nil
		}

		waitStart := m.clock.Now()
		q, err := m.queues.TakeReady(ctx, m.pollWait)
		if err != nil {
			return err
		}
		if q == nil {
			continue
		}
		metrics.ObserveCrawlDelayWait(q.Key().Host(), m.clock.Now().Sub(waitStart))

		if err := m.sem.Acquire(ctx, 1); err != nil {
			return err
		}

		datum, ok, pollErr := q.Poll(m.clock.Now())
		if pollErr != nil {
			m.sem.Release(1)
			m.logger.Warn("poll failed", zap.Error(pollErr))
			continue
		}
		if !ok {
			m.sem.Release(1)
			continue
		}

		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				m.sem.Release(1)
				m.queues.Release(q)
				return err
			}
		}

		queue := q
		scored := datum
		p.Go(func(ctx context.Context) error {
			defer m.sem.Release(1)
			defer m.queues.Release(queue)
			m.dispatch(ctx, scored)
			return nil
		})
	}
}

func (m *Manager) pastDeadline() bool {
	return m.policy.HasDeadline() && !m.clock.Now().Before(m.policy.CrawlEndTime())
}

func (m *Manager) dispatch(ctx context.Context, datum fetchmodel.ScoredUrlDatum) {
	ctx, span := tracer.Start(ctx, "FetcherManager.dispatch")
	defer span.End()

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		m.logger.Error("fetch worker panicked", zap.String("url", datum.URL), zap.Any("panic", r))
		status := fetchmodel.StatusDatum{
			URL:         datum.URL,
			Status:      fetchmodel.StatusFetchError,
			Message:     fmt.Sprintf("worker panic: %v", r),
			CompletedAt: m.clock.Now(),
			Metadata:    datum.Metadata.Clone(),
		}
		if err := m.status.PutStatus(ctx, status); err != nil {
			m.logger.Warn("status sink failed after panic", zap.String("url", datum.URL), zap.Error(err))
		}
	}()

	fetched := m.fetcher.Fetch(ctx, datum)
	metrics.ObserveFetch(datum.URL, string(fetched.Status), len(fetched.Content), fetched.Truncated, fetched.Status == fetchmodel.StatusAborted)
	if err := m.content.PutContent(ctx, fetched); err != nil {
		m.logger.Warn("content sink failed", zap.String("url", datum.URL), zap.Error(err))
	}

	// The content stream carries ERROR; the status stream carries the
	// UrlDatum-level FETCH_ERROR for the same outcome.
	statusValue := fetched.Status
	statusMessage := ""
	if fetched.Status == fetchmodel.StatusError {
		statusValue = fetchmodel.StatusFetchError
		if fetched.HTTPStatus != 0 {
			statusMessage = fmt.Sprintf("http status %d", fetched.HTTPStatus)
		} else {
			statusMessage = "fetch failed before response"
		}
	}
	status := fetchmodel.StatusDatum{
		URL:         datum.URL,
		Status:      statusValue,
		HTTPStatus:  fetched.HTTPStatus,
		Message:     statusMessage,
		CompletedAt: fetched.CompletedAt,
		Metadata:    datum.Metadata.Clone(),
	}
	if err := m.status.PutStatus(ctx, status); err != nil {
		m.logger.Warn("status sink failed", zap.String("url", datum.URL), zap.Error(err))
	}
}

// drainRemaining implements the soft-shutdown path: once CrawlEndTime has
// passed, stop dispatching and mark every still-queued URL ABORTED rather
// than silently dropping it.
func (m *Manager) drainRemaining(ctx context.Context) error {
	for _, q := range m.queues.Queues() {
		pending, err := q.DrainAborted()
		if err != nil {
			m.logger.Warn("drain failed", zap.Error(err))
			continue
		}
		for _, datum := range pending {
			status := fetchmodel.StatusDatum{
				URL:         datum.URL,
				Status:      fetchmodel.StatusAborted,
				Message:     "crawl end time reached before dispatch",
				CompletedAt: m.clock.Now(),
				Metadata:    datum.Metadata.Clone(),
			}
			if err := m.status.PutStatus(ctx, status); err != nil {
				m.logger.Warn("status sink failed during drain", zap.String("url", datum.URL), zap.Error(err))
			}
		}
	}
	return nil
}
