// Package storage wraps the object store holding product images.  The
// bucket is addressed through gocloud.dev/blob so local directories and
// hosted object stores are interchangeable via the bucket URL.  Uploads are
// keyed under products/ with a random name; the returned value is the
// public URL that gets persisted on the product row.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// bucket driver for local deployments
	_ "gocloud.dev/blob/memblob"  // mem:// bucket driver used by tests

	"bazaaradmin/internal/config"
)

// ImageStore uploads product images and derives their public URLs.
type ImageStore struct {
	bucket     *blob.Bucket
	publicBase string
}

// Open opens the configured bucket.  The caller owns the returned store and
// must Close it on shutdown.
func Open(ctx context.Context, cfg config.StorageConfig) (*ImageStore, error) {
	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("open image bucket %q: %w", cfg.BucketURL, err)
	}
	return NewImageStore(bucket, cfg.PublicBaseURL), nil
}

// NewImageStore wraps an already-open bucket.  Tests use this with an
// in-memory bucket.
func NewImageStore(bucket *blob.Bucket, publicBase string) *ImageStore {
	return &ImageStore{bucket: bucket, publicBase: strings.TrimSuffix(publicBase, "/")}
}

// Upload stores one image under a fresh random key, preserving the original
// file extension, and returns the public URL to persist.  The write is
// aborted on any copy error so no truncated object stays behind.
func (s *ImageStore) Upload(ctx context.Context, originalName string, r io.Reader, contentType string) (string, error) {
	ext := strings.ToLower(path.Ext(originalName))
	key := fmt.Sprintf("products/%s%s", uuid.NewString(), ext)

	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("open writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL returns the externally reachable URL for an object key.
func (s *ImageStore) PublicURL(key string) string {
	return s.publicBase + "/" + strings.TrimPrefix(key, "/")
}

// Close releases the underlying bucket.
func (s *ImageStore) Close() error {
	return s.bucket.Close()
}
