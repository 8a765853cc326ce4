package imagestore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const uploadTimeout = 2 * time.Minute

// GCSStore persists images in a Google Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	publicBase string // optional CDN/static domain fronting the bucket
}

// NewGCSStore creates a store writing into the named bucket. If publicBase
// is non-empty, returned URLs use it instead of the storage.googleapis.com
// form (e.g. a CDN domain fronting the bucket).
func NewGCSStore(ctx context.Context, bucket, publicBase string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("imagestore: bucket name required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("imagestore: storage client: %w", err)
	}
	return &GCSStore{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Save uploads the image under key and returns its retrieval URL.
func (s *GCSStore) Save(ctx context.Context, key string, image io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, image); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("imagestore: write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("imagestore: close object %s: %w", key, err)
	}

	return s.URLFor(key), nil
}

// URLFor returns the canonical retrieval URL for an object key.
func (s *GCSStore) URLFor(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// Close releases the underlying storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
