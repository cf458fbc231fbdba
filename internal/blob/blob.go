// Package blob abstracts where crawl artifacts land: the local
// filesystem, memory for tests, or Google Cloud Storage.
package blob

import (
	"context"
	"io"
)

// Store writes one artifact and returns its URI.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
