// Package uuid generates the identifiers that correlate one crawl run's
// logs, trace spans and output records.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates run identifiers. IDs are UUIDv7, so runs sort
// chronologically in log queries and object listings without a separate
// timestamp column.
type Generator struct{}

// NewGenerator returns a run-ID generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// NewID returns a fresh run identifier.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}
