// Command politefetch runs the polite fetch core as a standalone process:
// it reads a newline-delimited list of seed URLs, groups and paces them
// per host, fetches them, and writes FetchedDatum/StatusDatum records to
// the configured sinks.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/politefetch/politefetch/internal/adminapi"
	"github.com/politefetch/politefetch/internal/config"
	contentsinkgcs "github.com/politefetch/politefetch/internal/contentsink/gcs"
	contentsinklocal "github.com/politefetch/politefetch/internal/contentsink/local"
	contentsinkmemory "github.com/politefetch/politefetch/internal/contentsink/memory"
	"github.com/politefetch/politefetch/internal/fetchermanager"
	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/grouping"
	"github.com/politefetch/politefetch/internal/hostqueue"
	"github.com/politefetch/politefetch/internal/httpfetcher"
	iduuid "github.com/politefetch/politefetch/internal/id/uuid"
	"github.com/politefetch/politefetch/internal/logging"
	"github.com/politefetch/politefetch/internal/robots"
	"github.com/politefetch/politefetch/internal/score"
	statussinkmemory "github.com/politefetch/politefetch/internal/statussink/memory"
	"github.com/politefetch/politefetch/internal/statussink/pubsub"
	"github.com/politefetch/politefetch/internal/telemetry/metrics"
	"github.com/politefetch/politefetch/internal/telemetry/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	seedsPath := flag.String("seeds", "", "path to newline-delimited seed URL file")
	spillDir := flag.String("spill-dir", os.TempDir(), "directory for per-host spill files")
	flag.Parse()

	if err := run(*configPath, *seedsPath, *spillDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, seedsPath, spillDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()
	tp, err := tracing.Init(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = tracing.Shutdown(context.Background(), tp) }()

	policy := cfg.FetcherPolicy()

	robotsFetcher := robots.NewFetcher(cfg.Fetcher.UserAgent, cfg.HTTPTimeout())
	grouper := grouping.New(cfg.Fetcher.UserAgent, robotsFetcher, policy, grouping.WithLogger(logger))
	scorer := score.NewAgeGenerator(24 * time.Hour)
	fetcher := httpfetcher.New(cfg.Fetcher.UserAgent, policy, cfg.Fetcher.MaxThreads, httpfetcher.WithLogger(logger))

	queues := hostqueue.NewQueueManager()

	contentSink, closeContent, err := buildContentSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build content sink: %w", err)
	}
	defer closeContent()

	statusSink, closeStatus, err := buildStatusSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build status sink: %w", err)
	}
	defer closeStatus()

	runID, err := iduuid.NewGenerator().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	runLogger := logging.ForRun(logger, runID)

	manager := fetchermanager.New(queues, fetcher, contentSink, statusSink, policy, cfg.Fetcher.MaxThreads,
		fetchermanager.WithLogger(runLogger), fetchermanager.WithRunID(runID))
	runLogger.Info("starting fetch run")

	if seedsPath != "" {
		if err := seedQueues(ctx, seedsPath, grouper, scorer, policy, queues, statusSink, spillDir, runLogger); err != nil {
			return fmt.Errorf("seed queues: %w", err)
		}
	}

	admin := adminapi.New(queues, policy)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: admin.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin api failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	return manager.Run(ctx)
}

func buildContentSink(ctx context.Context, cfg config.Config) (fetchermanager.ContentSink, func(), error) {
	switch cfg.Storage.Backend {
	case "local":
		sink, err := contentsinklocal.New(cfg.Storage.LocalDir, cfg.Storage.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {}, nil
	case "gcs":
		sink, err := contentsinkgcs.New(ctx, cfg.Storage.GCSBucket, cfg.Storage.Prefix, cfg.Storage.ContentType)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	case "memory":
		return contentsinkmemory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func buildStatusSink(ctx context.Context, cfg config.Config) (fetchermanager.StatusSink, func(), error) {
	switch cfg.Queue.Backend {
	case "pubsub":
		sink, err := pubsub.New(ctx, cfg.Queue.ProjectID, cfg.Queue.TopicName)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	case "memory":
		return statussinkmemory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}

// groupingKindStatus maps a non-fetchable grouping.Key to the StatusDatum
// it must emit so that every input UrlDatum still produces exactly one
// status record even when it never reaches a PerHostQueue.
func groupingKindStatus(kind grouping.Kind) fetchmodel.FetchStatus {
	switch kind {
	case grouping.UnknownHost:
		return fetchmodel.StatusUnknownHost
	case grouping.Blocked:
		return fetchmodel.StatusBlocked
	case grouping.Deferred:
		return fetchmodel.StatusDeferred
	default:
		return fetchmodel.StatusSkipped
	}
}

// seedQueues reads newline-delimited URLs from seedsPath, groups each one
// and offers it to the corresponding PerHostQueue (creating it on first
// use), registering every resulting PerHostQueue with the QueueManager.
// URLs that the grouping/scoring stage disposes of before they ever reach a
// queue (UNKNOWN_HOST, BLOCKED, DEFERRED, SKIPPED) are written directly to
// statusSink, since a PerHostQueue will never see them to account for.
func seedQueues(ctx context.Context, seedsPath string, grouper *grouping.Generator, scorer score.Generator, policy fetchmodel.FetcherPolicy, queues *hostqueue.QueueManager, statusSink fetchermanager.StatusSink, spillDir string, logger *zap.Logger) error {
	f, err := os.Open(seedsPath)
	if err != nil {
		return fmt.Errorf("open seeds file: %w", err)
	}
	defer f.Close()

	hostQueues := make(map[string]*hostqueue.PerHostQueue)
	now := time.Now()

	emitStatus := func(rawURL string, status fetchmodel.FetchStatus, meta fetchmodel.Metadata) {
		if err := statusSink.PutStatus(ctx, fetchmodel.StatusDatum{
			URL:         rawURL,
			Status:      status,
			CompletedAt: now,
			Metadata:    meta,
		}); err != nil {
			logger.Warn("status sink failed during seeding", zap.String("url", rawURL), zap.Error(err))
		}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rawURL := scanner.Text()
		if rawURL == "" {
			continue
		}
		urlDatum := fetchmodel.UrlDatum{URL: rawURL, Status: fetchmodel.StatusUnfetched}
		key, err := grouper.KeyFor(ctx, urlDatum)
		if err != nil {
			logger.Warn("grouping failed", zap.String("url", rawURL), zap.Error(err))
			emitStatus(rawURL, fetchmodel.StatusFetchError, urlDatum.Metadata)
			continue
		}
		if !key.IsFetchable() {
			logger.Debug("url not fetchable", zap.String("url", rawURL), zap.Int("kind", int(key.Kind())))
			emitStatus(rawURL, groupingKindStatus(key.Kind()), urlDatum.Metadata)
			continue
		}

		grouped := fetchmodel.GroupedUrlDatum{UrlDatum: urlDatum, GroupingKey: key.String()}
		sc := scorer.Score(grouped, now)
		if sc < 0 {
			emitStatus(rawURL, fetchmodel.StatusSkipped, urlDatum.Metadata)
			continue
		}
		scored := fetchmodel.ScoredUrlDatum{GroupedUrlDatum: grouped, Score: sc}

		pq, ok := hostQueues[key.String()]
		if !ok {
			pq, err = hostqueue.NewPerHostQueue(key, policy.ThreadsPerHost(), spillDir, 256)
			if err != nil {
				return fmt.Errorf("new per-host queue for %s: %w", key.String(), err)
			}
			hostQueues[key.String()] = pq
			queues.Offer(pq)
		}
		if err := pq.Offer(scored); err != nil {
			logger.Warn("offer failed", zap.String("url", rawURL), zap.Error(err))
			emitStatus(rawURL, fetchmodel.StatusFetchError, urlDatum.Metadata)
		}
	}
	return scanner.Err()
}
