package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBlobStore writes blobs under a base directory on the local filesystem.
// Intended for development and tests.
type LocalBlobStore struct {
	BaseDir string
}

func NewLocalBlobStore(baseDir string) *LocalBlobStore {
	if baseDir == "" {
		panic("local blob store requires base dir")
	}
	return &LocalBlobStore{BaseDir: baseDir}
}

func (s *LocalBlobStore) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.BaseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	return "file://" + fullPath, nil
}

func (s *LocalBlobStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.BaseDir, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

var _ BlobStore = (*LocalBlobStore)(nil)
