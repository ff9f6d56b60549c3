// Package spillqueue implements a generic FIFO queue that keeps a bounded
// number of elements in memory and spills the rest to a disk-backed file.
package spillqueue

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Queue is a FIFO of E backed by memory up to maxInMemory elements, then by
// a disk file for the overflow. It is tuned for the "fill entirely, then
// drain entirely" access pattern; interleaved offer/poll while a spill
// file is open is supported but pays file I/O per element.
type Queue[E any] struct {
	mu sync.Mutex

	codec       Codec[E]
	maxInMemory int
	dir         string

	memQueue []E

	spillPath    string
	writeFile    *os.File
	writer       *bufio.Writer
	readFile     *os.File
	reader       *bufio.Reader
	fileElements int
	readAhead    *E
}

// New builds a Queue that keeps at most maxInMemory elements resident,
// spilling further Offer calls into a file under dir. codec must be
// non-nil; dir must be writable.
func New[E any](dir string, maxInMemory int, codec Codec[E]) (*Queue[E], error) {
	if maxInMemory <= 0 {
		maxInMemory = 1
	}
	f, err := os.CreateTemp(dir, "spillqueue-*.bin")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close fresh spill file: %w", err)
	}
	return &Queue[E]{
		codec:       codec,
		maxInMemory: maxInMemory,
		dir:         dir,
		spillPath:   path,
		memQueue:    make([]E, 0, maxInMemory),
	}, nil
}

// Offer enqueues e. It never blocks: elements beyond maxInMemory are
// written to the spill file.
func (q *Queue[E]) Offer(e E) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.memQueue) < q.maxInMemory && q.fileElements == 0 && q.readAhead == nil {
		q.memQueue = append(q.memQueue, e)
		return nil
	}
	return q.spill(e)
}

func (q *Queue[E]) spill(e E) error {
	if q.writer == nil {
		f, err := os.OpenFile(q.spillPath, os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open spill file for append: %w", err)
		}
		q.writeFile = f
		q.writer = bufio.NewWriter(f)
	}
	payload, err := q.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("encode spilled element: %w", err)
	}
	if err := writeRecord(q.writer, payload); err != nil {
		return err
	}
	if err := q.writer.Flush(); err != nil {
		return fmt.Errorf("flush spill file: %w", err)
	}
	q.fileElements++
	return nil
}

// Poll removes and returns the head of the queue. ok is false if the queue
// is empty.
func (q *Queue[E]) Poll() (e E, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.memQueue) == 0 {
		if loadErr := q.loadMemoryQueue(); loadErr != nil {
			return e, false, loadErr
		}
	}
	if len(q.memQueue) == 0 {
		return e, false, nil
	}
	head := q.memQueue[0]
	q.memQueue = q.memQueue[1:]
	return head, true, nil
}

// loadMemoryQueue refills memQueue from the spill file, reading one record
// past what it keeps (the "read-ahead" element) so it can tell the file is
// exhausted without ever popping an element it hasn't committed to
// returning from Poll.
func (q *Queue[E]) loadMemoryQueue() error {
	if q.fileElements == 0 && q.readAhead == nil {
		return nil
	}
	if err := q.ensureReaderOpen(); err != nil {
		return err
	}

	if q.readAhead != nil {
		q.memQueue = append(q.memQueue, *q.readAhead)
		q.readAhead = nil
	}

	for len(q.memQueue) < q.maxInMemory && q.fileElements > 0 {
		e, err := q.readOne()
		if err != nil {
			return err
		}
		q.fileElements--
		q.memQueue = append(q.memQueue, e)
	}

	if q.fileElements > 0 {
		e, err := q.readOne()
		if err != nil {
			return err
		}
		q.fileElements--
		q.readAhead = &e
	} else {
		q.closeReader()
		q.resetSpillFile()
	}
	return nil
}

func (q *Queue[E]) ensureReaderOpen() error {
	if q.reader != nil {
		return nil
	}
	if q.writer != nil {
		if err := q.writer.Flush(); err != nil {
			return fmt.Errorf("flush spill file before read: %w", err)
		}
		if err := q.writeFile.Close(); err != nil {
			return fmt.Errorf("close spill writer before read: %w", err)
		}
		q.writeFile, q.writer = nil, nil
	}
	f, err := os.Open(q.spillPath)
	if err != nil {
		return fmt.Errorf("open spill file for read: %w", err)
	}
	q.readFile = f
	q.reader = bufio.NewReader(f)
	return nil
}

func (q *Queue[E]) readOne() (E, error) {
	var zero E
	payload, err := readRecord(q.reader)
	if err != nil {
		return zero, err
	}
	return q.codec.Decode(payload)
}

func (q *Queue[E]) closeReader() {
	if q.readFile != nil {
		_ = q.readFile.Close()
		q.readFile, q.reader = nil, nil
	}
}

// resetSpillFile truncates the spill file once it has been fully drained,
// so the next spill starts from an empty file rather than growing forever.
func (q *Queue[E]) resetSpillFile() {
	_ = os.Truncate(q.spillPath, 0)
}

// Size returns the total number of queued elements, in memory or spilled,
// including the single read-ahead element if one is held.
func (q *Queue[E]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	size := len(q.memQueue) + q.fileElements
	if q.readAhead != nil {
		size++
	}
	return size
}

// IsEmpty reports whether Size() == 0.
func (q *Queue[E]) IsEmpty() bool { return q.Size() == 0 }

// Clear discards every queued element and removes the spill file,
// replacing it with a fresh empty one so the Queue stays usable.
func (q *Queue[E]) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.memQueue = q.memQueue[:0]
	q.fileElements = 0
	q.readAhead = nil
	q.closeReader()
	if q.writer != nil {
		_ = q.writer.Flush()
	}
	if q.writeFile != nil {
		_ = q.writeFile.Close()
		q.writeFile, q.writer = nil, nil
	}
	if err := os.Remove(q.spillPath); err != nil {
		return fmt.Errorf("remove spill file: %w", err)
	}
	f, err := os.CreateTemp(q.dir, "spillqueue-*.bin")
	if err != nil {
		return fmt.Errorf("create spill file: %w", err)
	}
	q.spillPath = f.Name()
	return f.Close()
}

// Close releases the spill file and removes it from disk. Callers must not
// use the Queue afterward.
func (q *Queue[E]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeReader()
	if q.writeFile != nil {
		_ = q.writeFile.Close()
	}
	return os.Remove(q.spillPath)
}
