// Package score assigns fetch priority within a host group.
package score

import (
	"time"

	"github.com/politefetch/politefetch/internal/fetchmodel"
)

// Generator assigns a priority score to a GroupedUrlDatum. Implementations
// must return fetchmodel.SkipURLScore to exclude a URL from the fetch
// entirely.
type Generator interface {
	Score(datum fetchmodel.GroupedUrlDatum, now time.Time) float64
}

// AgeGenerator is the default Generator: a score that rises monotonically
// with time since last fetch (so recently fetched URLs rank lowest),
// saturating at 1.0 once a URL has gone unfetched for at least Window.
type AgeGenerator struct {
	// Window is the age at which a never-refreshed URL reaches maximum
	// priority (1.0).
	Window time.Duration
}

// NewAgeGenerator builds an AgeGenerator with the given saturation window.
func NewAgeGenerator(window time.Duration) *AgeGenerator {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &AgeGenerator{Window: window}
}

// Score returns 1.0 for a URL that has never been fetched, otherwise the
// fraction of Window elapsed since LastFetchedAt, capped at 1.0.
func (g *AgeGenerator) Score(datum fetchmodel.GroupedUrlDatum, now time.Time) float64 {
	if datum.LastFetchedAt.IsZero() {
		return 1.0
	}
	age := now.Sub(datum.LastFetchedAt)
	if age <= 0 {
		return 0
	}
	fraction := float64(age) / float64(g.Window)
	if fraction > 1.0 {
		return 1.0
	}
	return fraction
}
