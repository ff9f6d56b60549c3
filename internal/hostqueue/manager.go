package hostqueue

import (
	"context"
	"sync"
	"time"
)

// QueueManager fairly selects the next PerHostQueue ready to dispatch,
// round-robining across hosts so no single host's backlog can starve the
// rest. TakeReady is signalled on Offer/Release rather than busy-waiting.
type QueueManager struct {
	mu     sync.Mutex
	queues map[string]*PerHostQueue
	order  []string
	nextAt int

	wake chan struct{}
}

// NewQueueManager builds an empty QueueManager.
func NewQueueManager() *QueueManager {
	return &QueueManager{
		queues: make(map[string]*PerHostQueue),
		wake:   make(chan struct{}, 1),
	}
}

// Offer registers q with the manager (idempotent for a key already known)
// and wakes any goroutine blocked in TakeReady.
func (m *QueueManager) Offer(q *PerHostQueue) {
	m.mu.Lock()
	key := q.Key().String()
	if _, exists := m.queues[key]; !exists {
		m.queues[key] = q
		m.order = append(m.order, key)
	}
	m.mu.Unlock()
	m.signal()
}

// Release records that a dispatch from q has completed and wakes any
// goroutine blocked in TakeReady, since q may now be ready again because a
// concurrency slot freed up. The crawl-delay window still runs from the
// last dispatch time, which Release does not change.
func (m *QueueManager) Release(q *PerHostQueue) {
	q.Release()
	m.signal()
}

func (m *QueueManager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// TakeReady blocks until some PerHostQueue is ready to dispatch (per
// PerHostQueue.ReadyAt), ctx is cancelled, or timeout elapses with nothing
// becoming ready, returning (nil, nil) in the timeout case so callers can
// distinguish "nothing to do yet" from a genuine error.
func (m *QueueManager) TakeReady(ctx context.Context, timeout time.Duration) (*PerHostQueue, error) {
	deadline := time.Now().Add(timeout)
	for {
		if q, ok := m.pickReady(time.Now()); ok {
			return q, nil
		}

		wait := m.nextWakeDelay(deadline)
		if wait <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
		if time.Now().After(deadline) {
			if q, ok := m.pickReady(time.Now()); ok {
				return q, nil
			}
			return nil, nil
		}
	}
}

// pickReady scans queues in round-robin order starting from nextAt,
// returning the first one whose ReadyAt has already arrived.
func (m *QueueManager) pickReady(now time.Time) (*PerHostQueue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.order)
	for i := 0; i < n; i++ {
		idx := (m.nextAt + i) % n
		key := m.order[idx]
		q := m.queues[key]
		readyAt, ready := q.ReadyAt(now)
		if ready && !readyAt.After(now) {
			m.nextAt = (idx + 1) % n
			return q, true
		}
	}
	return nil, false
}

// nextWakeDelay returns how long TakeReady should sleep before re-checking:
// the soonest ReadyAt across all non-empty queues, capped by deadline.
func (m *QueueManager) nextWakeDelay(deadline time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	best := deadline
	found := false
	for _, key := range m.order {
		q := m.queues[key]
		readyAt, ready := q.ReadyAt(now)
		if !ready {
			continue
		}
		found = true
		if readyAt.Before(best) {
			best = readyAt
		}
	}
	if !found {
		best = deadline
	}
	if best.After(deadline) {
		best = deadline
	}
	return best.Sub(now)
}

// IsDone reports whether every known queue is both empty and has no
// in-flight dispatches.
func (m *QueueManager) IsDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.order {
		q := m.queues[key]
		if !q.IsEmpty() || q.ActiveCount() > 0 {
			return false
		}
	}
	return true
}

// Queues returns a snapshot of every known PerHostQueue, for admin/metrics
// surfaces.
func (m *QueueManager) Queues() []*PerHostQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PerHostQueue, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.queues[key])
	}
	return out
}
