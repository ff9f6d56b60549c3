package spillqueue

import (
	"fmt"
	"os"
	"testing"
)

func intCodec() Codec[int] {
	return Codec[int]{
		Encode: func(v int) ([]byte, error) {
			return []byte(fmt.Sprintf("%d", v)), nil
		},
		Decode: func(b []byte) (int, error) {
			var v int
			_, err := fmt.Sscanf(string(b), "%d", &v)
			return v, err
		},
	}
}

// TestRoundTripPreservesOrder covers the core FIFO invariant:
// offer(e1)...offer(en); poll()...poll() returns e1...en in order, for n
// both under and over the in-memory cap.
func TestRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 4, 5, 6, 50} {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			q, err := New(dir, 5, intCodec())
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer q.Close()

			for i := 0; i < n; i++ {
				if err := q.Offer(i); err != nil {
					t.Fatalf("Offer(%d) error = %v", i, err)
				}
			}
			if got := q.Size(); got != n {
				t.Fatalf("Size() = %d, want %d", got, n)
			}

			for i := 0; i < n; i++ {
				got, ok, err := q.Poll()
				if err != nil {
					t.Fatalf("Poll() error = %v", err)
				}
				if !ok {
					t.Fatalf("Poll() ok = false at i=%d, want true", i)
				}
				if got != i {
					t.Fatalf("Poll() = %d, want %d", got, i)
				}
			}

			if !q.IsEmpty() {
				t.Fatalf("expected queue empty after draining all %d elements", n)
			}
			if _, ok, err := q.Poll(); err != nil || ok {
				t.Fatalf("Poll() on empty queue = (_, %v, %v), want (_, false, nil)", ok, err)
			}
		})
	}
}

func TestSizeIncludesReadAhead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q, err := New(dir, 2, intCodec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer q.Close()

	for i := 0; i < 7; i++ {
		if err := q.Offer(i); err != nil {
			t.Fatalf("Offer(%d) error = %v", i, err)
		}
	}
	if got := q.Size(); got != 7 {
		t.Fatalf("Size() = %d, want 7", got)
	}

	// Draining the two in-memory elements and polling once more forces a
	// refill from the spill file, which loads 2 and 3 into memory and holds
	// 4 as the read-ahead element; Size() must still account for it.
	for i := 0; i < 3; i++ {
		if _, ok, err := q.Poll(); err != nil || !ok {
			t.Fatalf("Poll() = (_, %v, %v), want (_, true, nil)", ok, err)
		}
	}
	if q.readAhead == nil {
		t.Fatalf("expected a read-ahead element after the refill")
	}
	if got := q.Size(); got != 4 {
		t.Fatalf("Size() after three Polls = %d, want 4", got)
	}
}

func TestClearRemovesEverythingAndSpillFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q, err := New(dir, 2, intCodec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer q.Close()

	for i := 0; i < 10; i++ {
		if err := q.Offer(i); err != nil {
			t.Fatalf("Offer(%d) error = %v", i, err)
		}
	}
	oldPath := q.spillPath
	if err := q.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if !q.IsEmpty() {
		t.Fatalf("expected queue empty after Clear()")
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected spill file %s removed after Clear(), stat err = %v", oldPath, err)
	}

	// The queue must still be usable after Clear(): fresh offers/polls
	// behave as on a brand-new queue.
	if err := q.Offer(42); err != nil {
		t.Fatalf("Offer() after Clear() error = %v", err)
	}
	got, ok, err := q.Poll()
	if err != nil || !ok || got != 42 {
		t.Fatalf("Poll() after Clear()+Offer() = (%d, %v, %v), want (42, true, nil)", got, ok, err)
	}
}

func TestCloseRemovesSpillFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q, err := New(dir, 1, intCodec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := q.Offer(i); err != nil {
			t.Fatalf("Offer(%d) error = %v", i, err)
		}
	}
	path := q.spillPath
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected spill file %s removed after Close(), stat err = %v", path, err)
	}
}
