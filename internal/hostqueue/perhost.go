// Package hostqueue implements the two-level per-host pacing scheduler:
// a PerHostQueue paces dispatch to one grouping key, and a QueueManager
// fairly picks the next PerHostQueue ready to dispatch.
package hostqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/grouping"
	"github.com/politefetch/politefetch/internal/spillqueue"
)

// PerHostQueue holds the backlog for a single grouping key, enforcing
// CrawlDelay between successive dispatches and the ThreadsPerHost
// concurrency cap.
type PerHostQueue struct {
	mu sync.Mutex

	key            grouping.Key
	threadsPerHost int

	backlog *spillqueue.Queue[fetchmodel.ScoredUrlDatum]

	numActive      int
	lastDispatchAt time.Time
}

// NewPerHostQueue builds a PerHostQueue for key, spilling backlog beyond
// maxInMemory elements into dir.
func NewPerHostQueue(key grouping.Key, threadsPerHost int, dir string, maxInMemory int) (*PerHostQueue, error) {
	if threadsPerHost <= 0 {
		threadsPerHost = 1
	}
	backlog, err := spillqueue.New(dir, maxInMemory, scoredDatumCodec())
	if err != nil {
		return nil, fmt.Errorf("new per-host backlog for %s: %w", key.String(), err)
	}
	return &PerHostQueue{
		key:            key,
		threadsPerHost: threadsPerHost,
		backlog:        backlog,
	}, nil
}

// Key returns the grouping key this queue serves.
func (q *PerHostQueue) Key() grouping.Key { return q.key }

// Offer enqueues a scored URL for this host.
func (q *PerHostQueue) Offer(datum fetchmodel.ScoredUrlDatum) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backlog.Offer(datum)
}

// ReadyAt returns the earliest time at which Poll could succeed, given the
// current backlog, active-worker count and crawl-delay pacing. It does not
// mutate state.
func (q *PerHostQueue) ReadyAt(now time.Time) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readyAtLocked(now)
}

func (q *PerHostQueue) readyAtLocked(now time.Time) (time.Time, bool) {
	if q.backlog.IsEmpty() {
		return time.Time{}, false
	}
	if q.numActive >= q.threadsPerHost {
		return time.Time{}, false
	}
	if q.key.Kind() != grouping.Fetchable || q.lastDispatchAt.IsZero() {
		return now, true
	}
	earliest := q.lastDispatchAt.Add(q.key.CrawlDelay())
	if !earliest.After(now) {
		return now, true
	}
	return earliest, true
}

// Poll dequeues the next URL to dispatch if this queue is currently ready,
// recording the dispatch time for crawl-delay pacing and incrementing the
// active-worker count. Callers must call Release once the fetch completes.
//
// CrawlDelay bounds the interval between dispatches (not completions)
// regardless of ThreadsPerHost concurrency: Poll still enforces the delay
// even when numActive < ThreadsPerHost, so the per-host request rate
// stays at or below 1/CrawlDelay.
func (q *PerHostQueue) Poll(now time.Time) (fetchmodel.ScoredUrlDatum, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	readyAt, ready := q.readyAtLocked(now)
	if !ready || readyAt.After(now) {
		var zero fetchmodel.ScoredUrlDatum
		return zero, false, nil
	}
	datum, ok, err := q.backlog.Poll()
	if err != nil || !ok {
		return datum, false, err
	}
	q.numActive++
	q.lastDispatchAt = now
	return datum, true, nil
}

// Release records that an in-flight dispatch has finished, freeing a slot
// of ThreadsPerHost concurrency.
func (q *PerHostQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.numActive > 0 {
		q.numActive--
	}
}

// IsEmpty reports whether the backlog holds no further URLs and no
// dispatch is still in flight. A queue with in-flight dispatches but an
// empty backlog is not IsEmpty.
func (q *PerHostQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backlog.IsEmpty() && q.numActive == 0
}

// ActiveCount reports the number of in-flight dispatches not yet Released.
func (q *PerHostQueue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.numActive
}

// BacklogSize reports the number of queued, not-yet-dispatched URLs.
func (q *PerHostQueue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backlog.Size()
}

// DrainAborted pops every remaining backlog entry, for the soft-shutdown
// path that marks a crawl's unfinished backlog ABORTED once CrawlEndTime
// passes.
func (q *PerHostQueue) DrainAborted() ([]fetchmodel.ScoredUrlDatum, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var drained []fetchmodel.ScoredUrlDatum
	for {
		datum, ok, err := q.backlog.Poll()
		if err != nil {
			return drained, err
		}
		if !ok {
			return drained, nil
		}
		drained = append(drained, datum)
	}
}

// Close releases the backing spill file.
func (q *PerHostQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backlog.Close()
}
