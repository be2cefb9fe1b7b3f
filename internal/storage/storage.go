package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"mediagate/internal/config"
)

// Package storage holds the object storage abstraction for media bytes.
// Backends: local filesystem (default) and S3-compatible (MinIO).

// Backend names accepted by New.
const (
	BackendFilesystem = "filesystem"
	BackendMinIO      = "minio"
)

// ErrObjectNotFound is returned by Open and Delete when the key has no object.
var ErrObjectNotFound = errors.New("storage: object not found")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Object is an open, seekable handle on stored bytes. The caller owns it
// and must Close it exactly once.
type Object interface {
	io.ReadSeekCloser
}

// Storage is implemented by every media byte backend.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Put stores the content of r under key.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Open returns a seekable handle and the live size of the object.
	Open(ctx context.Context, key string) (Object, ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "", BackendFilesystem:
		return NewFilesystem(cfg.UploadDir)
	case BackendMinIO:
		return NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
