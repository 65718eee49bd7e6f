// Package storage serves video blobs out of an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no blob exists at a path.
var ErrNotFound = errors.New("storage: blob not found")

// Blob is an open object. The caller closes Body.
type Blob struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Blobs is the object store used by the HTTP handlers.
type Blobs interface {
	Get(ctx context.Context, path string) (*Blob, error)
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error
	Ping(ctx context.Context) error
}
