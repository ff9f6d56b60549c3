// Package local persists FetchedDatum bodies to the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/politefetch/politefetch/internal/fetchmodel"
	sha256hash "github.com/politefetch/politefetch/internal/hash/sha256"
)

var objectNameHasher = sha256hash.New()

// Sink writes fetched content as files under baseDir, one per fetch,
// keyed by a timestamp-qualified, path-traversal-safe name derived from
// the URL.
type Sink struct {
	baseDir string
	prefix  string
}

// New builds a Sink rooted at baseDir, creating it if necessary.
func New(baseDir, prefix string) (*Sink, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &Sink{baseDir: baseDir, prefix: prefix}, nil
}

// PutContent implements fetchermanager.ContentSink.
func (s *Sink) PutContent(_ context.Context, datum fetchmodel.FetchedDatum) error {
	name := objectName(s.prefix, datum)
	fullPath := filepath.Join(s.baseDir, name)

	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected for %q", datum.URL)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, datum.Content, 0o600); err != nil {
		return fmt.Errorf("write content file: %w", err)
	}
	return nil
}

// objectName derives a collision-safe, path-traversal-safe filename from
// datum.URL.
func objectName(prefix string, datum fetchmodel.FetchedDatum) string {
	digest := objectNameHasher.Hash([]byte(datum.URL))
	ts := datum.CompletedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return filepath.Join(prefix, fmt.Sprintf("%d-%s.bin", ts.UnixNano(), digest))
}
