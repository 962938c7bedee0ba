// Package storage keeps proxied poster, backdrop and profile images so they
// are fetched from the image host only once.
//
// Implementations:
// - LocalStorage: files under a directory, for development
// - R2Storage: Cloudflare R2 (S3-compatible) object storage, for production
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
)

// Storage stores image objects by key. Keys are slash-separated relative
// paths as produced by ImageKey.
type Storage interface {
	// Put stores data at key, replacing any existing object.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the object at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type. Detected from the key when empty.
	ContentType string

	// MaxSize rejects objects larger than this many bytes with ErrTooLarge.
	// Zero means no limit.
	MaxSize int64

	// CacheControl is stored with the object where the backend supports it.
	CacheControl string
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region is required by the AWS SDK. R2 accepts "auto".
	Region string

	// Endpoint overrides the account endpoint, e.g. for an S3-compatible
	// server in tests.
	Endpoint string
}

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// New creates the Storage for provider.
func New(provider string, local LocalConfig, r2 R2Config, logger *slog.Logger) (Storage, error) {
	switch provider {
	case ProviderLocal:
		return NewLocalStorage(local, logger)
	case ProviderR2:
		return NewR2Storage(r2, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}

// ImageKey returns the key for an image file at a rendition size.
// Format: images/{size}/{file}
func ImageKey(size, file string) (string, error) {
	if size == "" || file == "" || strings.ContainsAny(size, `/\`) || strings.ContainsAny(file, `/\`) {
		return "", ErrInvalidKey
	}
	key := path.Join("images", size, file)
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ValidateKey rejects empty keys, absolute keys and keys that would escape
// the storage root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
