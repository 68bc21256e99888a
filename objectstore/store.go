// Package objectstore reads podcast audio and artwork from object storage.
package objectstore

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a key has no object behind it.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that cannot be normalized.
	ErrInvalidKey = errors.New("invalid object key")
)

// Object is an open object body plus the metadata needed to serve it.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	// ContentLength is negative when the backend did not report a size.
	ContentLength int64
}

// Store fetches objects by key.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
}
