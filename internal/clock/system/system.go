// Package system provides the wall clock behind the scheduler's
// crawl-delay pacing and deadline checks. Components take the clock as an
// interface so pacing tests can pin "now" instead of sleeping.
package system

import "time"

// Clock reads the real time, in UTC so dispatch timestamps compare
// consistently across nodes in different zones.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
