//go:build gcp

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore stores blobs in a Google Cloud Storage bucket keyed by their
// SHA-256 hash. Built only under the gcp tag to keep the default binary
// free of the GCS dependency tree.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates a GCS-backed blob store using application default
// credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}

	id := contentAddress(data)
	obj := s.client.Bucket(s.bucket).Object(s.keyFor(id))

	// Idempotent: identical content is already present.
	if _, err := obj.Attrs(ctx); err == nil {
		return id, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if filename != "" {
		w.Metadata = map[string]string{"filename": filename}
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs finalize: %w", err)
	}
	return id, nil
}

func (s *GCSStore) Get(ctx context.Context, id string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.keyFor(id)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs open: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read: %w", err)
	}
	return data, nil
}

func (s *GCSStore) keyFor(id string) string {
	return s.prefix + strings.TrimPrefix(id, "sha256:") + ".blob"
}
