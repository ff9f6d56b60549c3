// Package gcs persists FetchedDatum bodies to a Google Cloud Storage
// bucket.
package gcs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"

	"github.com/politefetch/politefetch/internal/fetchmodel"
	sha256hash "github.com/politefetch/politefetch/internal/hash/sha256"
)

var objectNameHasher = sha256hash.New()

// Sink writes fetched content as objects in a GCS bucket.
type Sink struct {
	client      *storage.Client
	bucket      string
	prefix      string
	contentType string
}

// New builds a Sink writing to bucket under prefix. contentType is applied
// to every object written; no content-type sniffing is performed.
func New(ctx context.Context, bucket, prefix, contentType string) (*Sink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("new gcs client: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Sink{client: client, bucket: bucket, prefix: prefix, contentType: contentType}, nil
}

// PutContent implements fetchermanager.ContentSink.
func (s *Sink) PutContent(ctx context.Context, datum fetchmodel.FetchedDatum) error {
	ts := datum.CompletedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	objectName := fmt.Sprintf("%s/%d-%s.bin", s.prefix, ts.UnixNano(), objectNameHasher.Hash([]byte(datum.URL)))

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = s.contentType
	if _, err := w.Write(datum.Content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (s *Sink) Close() error { return s.client.Close() }
