package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/politefetch/politefetch/internal/fetchmodel"
)

// PolicyRecord is a self-describing, JSON-round-trippable encoding of a
// fetchmodel.FetcherPolicy, so workers on other nodes can reconstruct the
// policy from job configuration without sharing process state.
type PolicyRecord struct {
	CrawlEndTime    time.Time `json:"crawl_end_time,omitempty"`
	MinResponseRate int64     `json:"min_response_rate_bps"`
	MaxContentSize  int64     `json:"max_content_size_bytes"`
	CrawlDelayMs    int64     `json:"crawl_delay_ms"`
	MaxRedirects    int       `json:"max_redirects"`
	ThreadsPerHost  int       `json:"threads_per_host"`
	MaxGlobalRPS    float64   `json:"max_global_rps"`
	UseIPGrouping   bool      `json:"use_ip_grouping"`
	RobotsCacheSize int       `json:"robots_cache_size"`
}

// ToPolicyRecord converts a FetcherPolicy to its wire form.
func ToPolicyRecord(p fetchmodel.FetcherPolicy) PolicyRecord {
	return PolicyRecord{
		CrawlEndTime:    p.CrawlEndTime(),
		MinResponseRate: p.MinResponseRate(),
		MaxContentSize:  p.MaxContentSize(),
		CrawlDelayMs:    p.CrawlDelay().Milliseconds(),
		MaxRedirects:    p.MaxRedirects(),
		ThreadsPerHost:  p.ThreadsPerHost(),
		MaxGlobalRPS:    p.MaxGlobalRPS(),
		UseIPGrouping:   p.UseIPGrouping(),
		RobotsCacheSize: p.RobotsCacheSize(),
	}
}

// ToFetcherPolicy converts a wire-form PolicyRecord back into a
// fetchmodel.FetcherPolicy.
func (r PolicyRecord) ToFetcherPolicy() fetchmodel.FetcherPolicy {
	opts := []fetchmodel.PolicyOption{
		fetchmodel.WithMinResponseRate(r.MinResponseRate),
		fetchmodel.WithMaxContentSize(r.MaxContentSize),
		fetchmodel.WithCrawlDelay(time.Duration(r.CrawlDelayMs) * time.Millisecond),
		fetchmodel.WithMaxRedirects(r.MaxRedirects),
		fetchmodel.WithThreadsPerHost(r.ThreadsPerHost),
		fetchmodel.WithMaxGlobalRPS(r.MaxGlobalRPS),
		fetchmodel.WithIPGrouping(r.UseIPGrouping),
		fetchmodel.WithRobotsCacheSize(r.RobotsCacheSize),
	}
	if !r.CrawlEndTime.IsZero() {
		opts = append(opts, fetchmodel.WithCrawlEndTime(r.CrawlEndTime))
	}
	return fetchmodel.NewFetcherPolicy(opts...)
}

// MarshalPolicy encodes p as JSON for cross-node transport.
func MarshalPolicy(p fetchmodel.FetcherPolicy) ([]byte, error) {
	b, err := json.Marshal(ToPolicyRecord(p))
	if err != nil {
		return nil, fmt.Errorf("marshal policy record: %w", err)
	}
	return b, nil
}

// UnmarshalPolicy decodes a FetcherPolicy previously encoded by
// MarshalPolicy.
func UnmarshalPolicy(data []byte) (fetchmodel.FetcherPolicy, error) {
	var record PolicyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fetchmodel.FetcherPolicy{}, fmt.Errorf("unmarshal policy record: %w", err)
	}
	return record.ToFetcherPolicy(), nil
}

// FetcherPolicy builds a fetchmodel.FetcherPolicy from the loaded Config's
// FetcherConfig section.
func (c Config) FetcherPolicy() fetchmodel.FetcherPolicy {
	opts := []fetchmodel.PolicyOption{
		fetchmodel.WithMinResponseRate(c.Fetcher.MinResponseRateBps),
		fetchmodel.WithMaxContentSize(c.Fetcher.MaxContentSizeKiB * 1024),
		fetchmodel.WithCrawlDelay(time.Duration(c.Fetcher.CrawlDelaySeconds) * time.Second),
		fetchmodel.WithMaxRedirects(c.Fetcher.MaxRedirects),
		fetchmodel.WithThreadsPerHost(c.Fetcher.ThreadsPerHost),
		fetchmodel.WithMaxGlobalRPS(c.Fetcher.MaxGlobalRPS),
		fetchmodel.WithIPGrouping(c.Fetcher.UseIPGrouping),
		fetchmodel.WithRobotsCacheSize(c.Fetcher.RobotsCacheSize),
	}
	if c.Fetcher.CrawlDurationMins > 0 {
		opts = append(opts, fetchmodel.WithCrawlEndTime(time.Now().Add(time.Duration(c.Fetcher.CrawlDurationMins)*time.Minute)))
	}
	return fetchmodel.NewFetcherPolicy(opts...)
}
