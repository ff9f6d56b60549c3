// Package memory provides an in-process StatusSink, used in tests and
// single-process runs.
package memory

import (
	"context"
	"sync"

	"github.com/politefetch/politefetch/internal/fetchmodel"
)

// Sink collects every StatusDatum it receives, in arrival order.
type Sink struct {
	mu      sync.RWMutex
	records []fetchmodel.StatusDatum
}

// New builds an empty Sink.
func New() *Sink { return &Sink{} }

// PutStatus implements fetchermanager.StatusSink.
func (s *Sink) PutStatus(_ context.Context, datum fetchmodel.StatusDatum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, datum)
	return nil
}

// Records returns a snapshot of every StatusDatum received so far.
func (s *Sink) Records() []fetchmodel.StatusDatum {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fetchmodel.StatusDatum, len(s.records))
	copy(out, s.records)
	return out
}
