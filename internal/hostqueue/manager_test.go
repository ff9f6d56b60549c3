package hostqueue

import (
	"context"
	"testing"
	"time"

	"github.com/politefetch/politefetch/internal/grouping"
)

func newTestQueue(t *testing.T, host string, delay time.Duration) *PerHostQueue {
	t.Helper()
	q, err := NewPerHostQueue(grouping.FetchableKey(host, delay), 1, t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewPerHostQueue(%s) error = %v", host, err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueueManagerTakeReadyReturnsOnlyReadyQueues(t *testing.T) {
	t.Parallel()

	m := NewQueueManager()

	blocked := newTestQueue(t, "slow.example.com", time.Hour)
	if err := blocked.Offer(scoredURL("http://slow.example.com/", 1.0)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	// Force the blocked queue's next dispatch far in the future.
	if _, ok, err := blocked.Poll(time.Now()); err != nil || !ok {
		t.Fatalf("priming Poll() = (_, %v, %v)", ok, err)
	}
	blocked.Release()
	if err := blocked.Offer(scoredURL("http://slow.example.com/2", 1.0)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}

	ready := newTestQueue(t, "fast.example.com", 0)
	if err := ready.Offer(scoredURL("http://fast.example.com/", 1.0)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}

	m.Offer(blocked)
	m.Offer(ready)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := m.TakeReady(ctx, time.Second)
	if err != nil {
		t.Fatalf("TakeReady() error = %v", err)
	}
	if got == nil {
		t.Fatalf("TakeReady() returned nil, want the ready queue")
	}
	if got.Key().Host() != "fast.example.com" {
		t.Fatalf("TakeReady() returned %s, want fast.example.com", got.Key().Host())
	}
}

func TestQueueManagerIsDoneRequiresEmptyAndIdle(t *testing.T) {
	t.Parallel()

	m := NewQueueManager()
	q := newTestQueue(t, "example.com", 0)
	m.Offer(q)

	if !m.IsDone() {
		t.Fatalf("IsDone() = false for a freshly offered, still-empty queue")
	}

	if err := q.Offer(scoredURL("http://example.com/", 1.0)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	if m.IsDone() {
		t.Fatalf("IsDone() = true while a queue still has backlog")
	}

	datum, ok, err := q.Poll(time.Now())
	if err != nil || !ok {
		t.Fatalf("Poll() = (_, %v, %v)", ok, err)
	}
	_ = datum
	if m.IsDone() {
		t.Fatalf("IsDone() = true while a dispatch is still active")
	}

	m.Release(q)
	if !m.IsDone() {
		t.Fatalf("IsDone() = false after backlog drained and dispatch released")
	}
}

func TestQueueManagerOfferIsIdempotentPerKey(t *testing.T) {
	t.Parallel()

	m := NewQueueManager()
	q1 := newTestQueue(t, "example.com", 0)
	q2 := newTestQueue(t, "example.com", 0)

	m.Offer(q1)
	m.Offer(q2)

	if got := len(m.Queues()); got != 1 {
		t.Fatalf("Queues() length = %d, want 1 (second Offer for the same key must be a no-op)", got)
	}
}
