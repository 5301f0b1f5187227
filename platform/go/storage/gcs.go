package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSBlobStore writes blobs into a Google Cloud Storage bucket.
type GCSBlobStore struct {
	Client *storage.Client
	Bucket string
}

func NewGCSBlobStore(client *storage.Client, bucket string) *GCSBlobStore {
	if client == nil {
		panic("gcs blob store requires client")
	}
	if bucket == "" {
		panic("gcs blob store requires bucket")
	}
	return &GCSBlobStore{Client: client, Bucket: bucket}
}

func (s *GCSBlobStore) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	w := s.Client.Bucket(s.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object writer: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.Bucket, key), nil
}

func (s *GCSBlobStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := s.Client.Bucket(s.Bucket).Object(key).Delete(ctx); err != nil &&
		!errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

var _ BlobStore = (*GCSBlobStore)(nil)
