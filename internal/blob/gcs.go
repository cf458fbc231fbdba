package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore streams snapshot uploads into a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCS wraps an authenticated storage client for one bucket.
func NewGCS(client *storage.Client, bucket string) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// PutObject streams r into the bucket under path and returns the gs://
// URI. The object is not durable until the writer closes cleanly, so a
// failed Close fails the upload.
func (s *GCSStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("object path is required")
	}
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	_, copyErr := io.Copy(w, r)
	closeErr := w.Close()
	switch {
	case copyErr != nil:
		return "", fmt.Errorf("upload %s: %w", path, copyErr)
	case closeErr != nil:
		return "", fmt.Errorf("finalize %s: %w", path, closeErr)
	}
	return "gs://" + s.bucket + "/" + path, nil
}
