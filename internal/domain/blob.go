package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader inspects and prunes objects in storage.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Delete(ctx context.Context, path string) error
}
