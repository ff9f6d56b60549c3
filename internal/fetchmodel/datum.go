package fetchmodel

import "time"

// Metadata is an opaque key/value bag propagated verbatim from the input
// UrlDatum through every output record. Field names are configured by the
// surrounding pipeline; this package treats them as plain comparable values.
type Metadata map[string]any

// Clone returns a shallow copy, sufficient for the comparable values the
// pipeline is documented to carry.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UrlDatum is a URL plus its crawl history and current disposition.
type UrlDatum struct {
	URL           string
	LastFetchedAt time.Time
	LastUpdatedAt time.Time
	Status        FetchStatus
	Metadata      Metadata
}

// GroupedUrlDatum attaches the grouping key computed by GroupingKeyGenerator.
type GroupedUrlDatum struct {
	UrlDatum
	GroupingKey string
}

// SkipURLScore is the reserved sentinel meaning "omit from fetch".
const SkipURLScore = -1.0

// ScoredUrlDatum attaches the priority score assigned within a host group.
type ScoredUrlDatum struct {
	GroupedUrlDatum
	Score float64
}

// FetchedDatum is the content-sink output record for a URL that was fetched
// (successfully, with an error response, or aborted mid-read).
type FetchedDatum struct {
	URL           string
	RedirectedURL string
	RedirectChain []string
	Status        FetchStatus // FETCHED, ERROR, or ABORTED
	HTTPStatus    int
	Headers       *Headers
	Content       []byte
	Truncated     bool
	ContentType   string
	ReadRateBps   int64
	CompletedAt   time.Time
	Metadata      Metadata
}

// StatusDatum is the status-sink output record, emitted exactly once per
// input UrlDatum regardless of which disposition it took.
type StatusDatum struct {
	URL         string
	Status      FetchStatus
	HTTPStatus  int
	Message     string
	CompletedAt time.Time
	Metadata    Metadata
}
