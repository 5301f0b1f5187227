package storage

import (
	"context"
	"fmt"
	"strings"
)

// BlobStore is the capability interface for persisting export artifacts.
// Implementations are selected once at startup via configuration; callers
// never branch on the backend at call time.
type BlobStore interface {
	// Put writes data under key and returns a stable URL for the object.
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
	// Delete removes the object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// CleanKey normalizes a tenant-relative object key.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("object key %q must not contain path traversal", key)
	}
	return key, nil
}
