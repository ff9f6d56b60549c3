// Package memory provides an in-process ContentSink backed by a slice,
// used in tests and single-process runs.
package memory

import (
	"context"
	"sync"

	"github.com/politefetch/politefetch/internal/fetchmodel"
)

// Sink collects every FetchedDatum it receives, in arrival order.
type Sink struct {
	mu      sync.Mutex
	records []fetchmodel.FetchedDatum
}

// New builds an empty Sink.
func New() *Sink { return &Sink{} }

// PutContent implements fetchermanager.ContentSink.
func (s *Sink) PutContent(_ context.Context, datum fetchmodel.FetchedDatum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, datum)
	return nil
}

// Records returns a snapshot of every FetchedDatum received so far.
func (s *Sink) Records() []fetchmodel.FetchedDatum {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fetchmodel.FetchedDatum, len(s.records))
	copy(out, s.records)
	return out
}
